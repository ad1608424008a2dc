package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DetectedEvent is a plan the assistant spotted in a conversation, such as
// "dinner Friday at 8". Events stay proposals until the user confirms them;
// cancelled events are kept for history.
type DetectedEvent struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"-"`
	SessionID   *uuid.UUID `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartsAt    time.Time  `json:"starts_at"`
	Conflict    bool       `json:"conflict"`
	IsConfirmed bool       `json:"is_confirmed"`
	IsCancelled bool       `json:"is_cancelled"`
	RemindedAt  *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EventRepository defines the interface for detected event storage
type EventRepository interface {
	Create(ctx context.Context, event *DetectedEvent) error
	ListByUser(ctx context.Context, userID uuid.UUID, includeCancelled bool) ([]DetectedEvent, error)
	Confirm(ctx context.Context, id, userID uuid.UUID) error
	Cancel(ctx context.Context, id, userID uuid.UUID) error
	// FindOverlapping returns non-cancelled events for the user whose start
	// time falls within window of start.
	FindOverlapping(ctx context.Context, userID uuid.UUID, start time.Time, window time.Duration) ([]DetectedEvent, error)
	// ListDueReminders returns confirmed, unreminded events starting within
	// window of now.
	ListDueReminders(ctx context.Context, now time.Time, window time.Duration) ([]DetectedEvent, error)
	MarkReminded(ctx context.Context, id uuid.UUID) error
}
