package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is returned on login; the token is also pinned in Redis until
// ExpiresAt or logout.
type Session struct {
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
