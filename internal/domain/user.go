package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the local read model of an account. Registration, login and
// billing live in the identity service; this table only mirrors what chat
// needs to make quota and personalization decisions.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"display_name"`
	IsPremium        bool       `json:"is_premium"`
	PremiumExpiresAt *time.Time `json:"premium_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Premium reports whether the premium flag is active at the given instant.
func (u *User) Premium(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	if u.PremiumExpiresAt != nil && u.PremiumExpiresAt.Before(now) {
		return false
	}
	return true
}

// UserRepository defines the interface for user lookups
type UserRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*User, error)
}
