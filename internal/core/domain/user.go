package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the owner of exactly one wallet.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	GoogleID  *string   `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
