package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TargetProfile holds what the user has told us about the person they are
// texting. Preferences is an append-only fact list grown by the enrichment
// job; the free-text fields are user-edited.
type TargetProfile struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"-"`
	Name        string    `json:"name"`
	Preferences []string  `json:"preferences"`
	Likes       string    `json:"likes,omitempty"`
	Details     string    `json:"details,omitempty"`
	Mentions    string    `json:"mentions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileRepository defines the interface for target profile storage
type ProfileRepository interface {
	Create(ctx context.Context, profile *TargetProfile) error
	Get(ctx context.Context, id, userID uuid.UUID) (*TargetProfile, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]TargetProfile, error)
	// MergePreferences appends the given facts, skipping duplicates.
	// Callers must hold the profile lock for the owning user.
	MergePreferences(ctx context.Context, id uuid.UUID, facts []string) error
}
