package model

import (
	"time"

	"github.com/google/uuid"
)

type (
	ContentType string

	Direction string

	// StoredMessage is one row of the local messages table. Plaintext is
	// only ever present locally; the server never sees it.
	StoredMessage struct {
		ID             uuid.UUID   `json:"id"`
		ConversationID uuid.UUID   `json:"conversation_id"`
		Direction      Direction   `json:"direction"`
		ContentType    ContentType `json:"content_type"`
		Plaintext      []byte      `json:"plaintext"`
		RawEnvelope    []byte      `json:"raw_envelope,omitempty"`
		Viewed         bool        `json:"viewed"`
		Purged         bool        `json:"purged"`
		CreatedAt      time.Time   `json:"created_at"`
		ReceivedAt     time.Time   `json:"received_at"`
	}
)

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"

	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)
