package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/quickpic/client/internal/model"
)

// MessageExists is the dedup check backing idempotent ingestion.
func (s *Store) MessageExists(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE id = ? LIMIT 1`, id.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// SaveMessage inserts or replaces msg by id and advances the owning
// conversation's last_message_at if this message is newer.
func (s *Store) SaveMessage(ctx context.Context, msg *model.StoredMessage) error {
	// A message may only be purged after it was viewed; the table's CHECK
	// constraint backs this up.
	if msg.Purged && !msg.Viewed {
		return ErrNotViewed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages
		(id, conversation_id, direction, content_type, plaintext, raw_envelope, viewed, purged, created_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.ConversationID.String(), string(msg.Direction), string(msg.ContentType),
		msg.Plaintext, msg.RawEnvelope, msg.Viewed, msg.Purged,
		formatTime(msg.CreatedAt), formatTime(msg.ReceivedAt))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = ?
		WHERE peer_id = ? AND (last_message_at IS NULL OR last_message_at < ?)`,
		formatTime(msg.CreatedAt), msg.ConversationID.String(), formatTime(msg.CreatedAt))
	return err
}

// ListMessages pages through one conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, peerID uuid.UUID, limit, offset int) ([]model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryMessages(ctx, `
		SELECT id, conversation_id, direction, content_type, plaintext, raw_envelope, viewed, purged, created_at, received_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?`, peerID.String(), limit, offset)
}

// ListUnviewed returns the received, not-yet-viewed messages of one
// conversation, oldest first.
func (s *Store) ListUnviewed(ctx context.Context, peerID uuid.UUID) ([]model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryMessages(ctx, `
		SELECT id, conversation_id, direction, content_type, plaintext, raw_envelope, viewed, purged, created_at, received_at
		FROM messages
		WHERE conversation_id = ? AND viewed = 0 AND direction = ?
		ORDER BY created_at ASC`, peerID.String(), string(model.DirectionReceived))
}

// MarkViewed flips the viewed flag. The transition is monotonic; calling it
// again is a no-op.
func (s *Store) MarkViewed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET viewed = 1 WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListPendingPurge returns viewed messages whose server copy has not been
// acknowledged as deleted yet.
func (s *Store) ListPendingPurge(ctx context.Context) ([]model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryMessages(ctx, `
		SELECT id, conversation_id, direction, content_type, plaintext, raw_envelope, viewed, purged, created_at, received_at
		FROM messages
		WHERE viewed = 1 AND purged = 0 AND direction = ?
		ORDER BY received_at ASC`, string(model.DirectionReceived))
}

// MarkPurged records that the server confirmed deletion. Only viewed
// messages are eligible; the store never holds purged=1 with viewed=0.
func (s *Store) MarkPurged(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET purged = 1 WHERE id = ? AND viewed = 1`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE id = ? LIMIT 1`, id.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotViewed
}

// PurgeOlderThan hard-deletes messages received before now-retention,
// viewed or not. Storage-pressure safety valve, independent of the
// view-then-purge protocol.
func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE received_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// WipeAll drops every message and conversation. Used on logout.
func (s *Store) WipeAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations`)
	return err
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]model.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.StoredMessage
	for rows.Next() {
		var (
			msg           model.StoredMessage
			idStr         string
			convIDStr     string
			direction     string
			contentType   string
			createdAtStr  string
			receivedAtStr string
		)
		err := rows.Scan(&idStr, &convIDStr, &direction, &contentType,
			&msg.Plaintext, &msg.RawEnvelope, &msg.Viewed, &msg.Purged,
			&createdAtStr, &receivedAtStr)
		if err != nil {
			return nil, err
		}
		if msg.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if msg.ConversationID, err = uuid.Parse(convIDStr); err != nil {
			return nil, err
		}
		msg.Direction = model.Direction(direction)
		msg.ContentType = model.ContentType(contentType)
		msg.CreatedAt = parseTime(createdAtStr)
		msg.ReceivedAt = parseTime(receivedAtStr)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
