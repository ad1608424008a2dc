package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/mvailland/cyrano/internal/domain"
)

// EventService exposes the user-facing surface over detected events.
// Detection itself runs in the pipeline; this only lists and flips flags.
type EventService struct {
	events domain.EventRepository
}

// NewEventService creates a new event service
func NewEventService(events domain.EventRepository) *EventService {
	return &EventService{events: events}
}

// List returns the user's detected events, upcoming first.
func (s *EventService) List(ctx context.Context, userID uuid.UUID, includeCancelled bool) ([]domain.DetectedEvent, error) {
	return s.events.ListByUser(ctx, userID, includeCancelled)
}

// Confirm marks an event as accepted, arming its reminder.
func (s *EventService) Confirm(ctx context.Context, id, userID uuid.UUID) error {
	return s.events.Confirm(ctx, id, userID)
}

// Cancel dismisses an event. Cancelled events never remind.
func (s *EventService) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	return s.events.Cancel(ctx, id, userID)
}
