package model

import (
	"time"

	"github.com/google/uuid"
)

type (
	User struct {
		ID         uuid.UUID `json:"id"`
		Username   string    `json:"username"`
		PublicKey  string    `json:"public_key"`
		SigningKey string    `json:"signing_key"`
		CreatedAt  time.Time `json:"created_at"`
	}

	AuthResponse struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		User         User   `json:"user"`
	}

	FriendRequest struct {
		ID         uuid.UUID `json:"id"`
		FromUserID uuid.UUID `json:"from_user_id"`
		ToUserID   uuid.UUID `json:"to_user_id"`
		Status     string    `json:"status"`
		CreatedAt  time.Time `json:"created_at"`
		FromUser   User      `json:"from_user"`
	}
)
