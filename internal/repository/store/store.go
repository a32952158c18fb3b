package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotViewed guards the purge ordering invariant: a message may only
	// be marked purged after it has been viewed.
	ErrNotViewed = errors.New("message not viewed yet")
)

// Store is the durable record of conversations and messages. SQLite is not
// safe for unsynchronized concurrent access, so every operation runs under
// one mutex; callers block only on their own call.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			peer_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			public_key TEXT NOT NULL,
			signing_key TEXT NOT NULL DEFAULT '',
			known_since TEXT NOT NULL DEFAULT '',
			last_message_at TEXT,
			unread_count INTEGER DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(peer_id),
			direction TEXT NOT NULL,
			content_type TEXT NOT NULL,
			plaintext BLOB NOT NULL,
			raw_envelope BLOB,
			viewed INTEGER DEFAULT 0,
			purged INTEGER DEFAULT 0,
			created_at TEXT NOT NULL,
			received_at TEXT NOT NULL,
			CHECK (purged = 0 OR viewed = 1)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Timestamps are stored as ISO8601 text, same as the rest of the QuickPic
// stack, so rows stay readable in a raw sqlite shell.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
