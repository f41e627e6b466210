package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a player. Guests are created as ephemeral users and can be claimed later.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	IsEphemeral bool `json:"is_ephemeral"`
	IsAdmin     bool `json:"is_admin"`

	CreatedAt time.Time `json:"created_at"`
}
