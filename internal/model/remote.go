package model

import (
	"time"

	"github.com/google/uuid"
)

type (
	// RemoteMessage is one undelivered ciphertext as served by the relay.
	// EncryptedContent round-trips through JSON as base64, matching the
	// server's []byte encoding.
	RemoteMessage struct {
		ID               uuid.UUID   `json:"id"`
		FromUserID       uuid.UUID   `json:"from_user_id"`
		ToUserID         uuid.UUID   `json:"to_user_id"`
		EncryptedContent []byte      `json:"encrypted_content"`
		ContentType      ContentType `json:"content_type"`
		Signature        string      `json:"signature"`
		CreatedAt        time.Time   `json:"created_at"`
		FromUsername     string      `json:"from_username"`
		FromPublicKey    string      `json:"from_public_key"`
		FromSigningKey   string      `json:"from_signing_key"`
	}

	SendMessageRequest struct {
		ToUsername       string      `json:"to_username"`
		EncryptedContent []byte      `json:"encrypted_content"`
		ContentType      ContentType `json:"content_type"`
		Signature        string      `json:"signature"`
	}

	SendMessageResponse struct {
		ID        uuid.UUID `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}
)
