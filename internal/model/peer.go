package model

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Peer is another user we exchange messages with. Key material is
	// immutable once learned: a peer whose keys change is a new peer.
	Peer struct {
		UserID     uuid.UUID `json:"user_id"`
		Username   string    `json:"username"`
		PublicKey  string    `json:"public_key"`  // base64 X25519 point
		SigningKey string    `json:"signing_key"` // base64 Ed25519 point
		Since      time.Time `json:"since"`
	}

	Conversation struct {
		PeerID        uuid.UUID  `json:"peer_id"`
		DisplayName   string     `json:"display_name"`
		PublicKey     string     `json:"public_key"`
		SigningKey    string     `json:"signing_key"`
		KnownSince    time.Time  `json:"known_since"`
		LastMessageAt *time.Time `json:"last_message_at,omitempty"`
		UnreadCount   int        `json:"unread_count"`
		CreatedAt     time.Time  `json:"created_at"`
	}
)
