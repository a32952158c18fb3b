package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quickpic/client/internal/model"
)

// UpsertConversation returns the conversation for peer, creating an empty
// one on first contact. Idempotent; an existing row is returned untouched.
func (s *Store) UpsertConversation(ctx context.Context, peer model.Peer) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.getConversationLocked(ctx, peer.UserID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (peer_id, display_name, public_key, signing_key, known_since, unread_count, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		peer.UserID.String(), peer.Username, peer.PublicKey, peer.SigningKey,
		formatTime(peer.Since), formatTime(now))
	if err != nil {
		return nil, err
	}

	return &model.Conversation{
		PeerID:      peer.UserID,
		DisplayName: peer.Username,
		PublicKey:   peer.PublicKey,
		SigningKey:  peer.SigningKey,
		KnownSince:  peer.Since,
		UnreadCount: 0,
		CreatedAt:   now,
	}, nil
}

// GetConversation looks up one conversation by peer id.
func (s *Store) GetConversation(ctx context.Context, peerID uuid.UUID) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getConversationLocked(ctx, peerID)
}

func (s *Store) getConversationLocked(ctx context.Context, peerID uuid.UUID) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT peer_id, display_name, public_key, signing_key, known_since, last_message_at, unread_count, created_at
		FROM conversations WHERE peer_id = ?`, peerID.String())
	return scanConversation(row)
}

// ListConversations orders threads with messages first (newest activity on
// top), then empty threads by creation time.
func (s *Store) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT peer_id, display_name, public_key, signing_key, known_since, last_message_at, unread_count, created_at
		FROM conversations
		ORDER BY
			CASE WHEN last_message_at IS NULL THEN 1 ELSE 0 END,
			last_message_at DESC,
			created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

// IncrementUnread bumps the unread counter for a conversation. The counter
// is maintained independently of per-message viewed flags, matching the
// shipped behavior.
func (s *Store) IncrementUnread(ctx context.Context, peerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET unread_count = unread_count + 1 WHERE peer_id = ?`,
		peerID.String())
	return err
}

// ResetUnread zeroes the counter, typically when the conversation is opened.
func (s *Store) ResetUnread(ctx context.Context, peerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET unread_count = 0 WHERE peer_id = ?`,
		peerID.String())
	return err
}

// TotalUnread sums unread counters across all conversations, for badges.
func (s *Store) TotalUnread(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(unread_count) FROM conversations`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		peerIDStr     string
		knownSinceStr string
		lastMessageAt sql.NullString
		createdAtStr  string
		conv          model.Conversation
	)
	err := row.Scan(&peerIDStr, &conv.DisplayName, &conv.PublicKey, &conv.SigningKey,
		&knownSinceStr, &lastMessageAt, &conv.UnreadCount, &createdAtStr)
	if err != nil {
		return nil, err
	}
	conv.PeerID, err = uuid.Parse(peerIDStr)
	if err != nil {
		return nil, err
	}
	conv.KnownSince = parseTime(knownSinceStr)
	conv.CreatedAt = parseTime(createdAtStr)
	if lastMessageAt.Valid {
		t := parseTime(lastMessageAt.String)
		conv.LastMessageAt = &t
	}
	return &conv, nil
}
