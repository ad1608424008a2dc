package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserSettings carries the personalization inputs for prompt building:
// persona, reply tones, language and the periodically refreshed writing
// style fingerprint.
type UserSettings struct {
	UserID            uuid.UUID  `json:"-"`
	Language          string     `json:"language"`
	Tones             []string   `json:"tones"`
	PersonaPrompt     string     `json:"persona_prompt,omitempty"`
	HideNotifications bool       `json:"hide_notifications"`
	StyleFingerprint  string     `json:"-"`
	StyleUpdatedAt    *time.Time `json:"-"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SettingsRepository defines the interface for user settings storage
type SettingsRepository interface {
	// Get returns the stored settings or ErrNotFound; callers fall back to
	// defaults.
	Get(ctx context.Context, userID uuid.UUID) (*UserSettings, error)
	Upsert(ctx context.Context, settings *UserSettings) error
	UpdateStyle(ctx context.Context, userID uuid.UUID, fingerprint string) error
}
