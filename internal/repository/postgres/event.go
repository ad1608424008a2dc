package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvailland/cyrano/internal/domain"
)

// EventRepository implements domain.EventRepository
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new detected event repository
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const eventColumns = `id, user_id, session_id, title, description, starts_at, conflict, is_confirmed, is_cancelled, reminded_at, created_at`

func scanEvent(row pgx.Row) (*domain.DetectedEvent, error) {
	var e domain.DetectedEvent
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.SessionID,
		&e.Title,
		&e.Description,
		&e.StartsAt,
		&e.Conflict,
		&e.IsConfirmed,
		&e.IsCancelled,
		&e.RemindedAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepository) Create(ctx context.Context, event *domain.DetectedEvent) error {
	query := `
		INSERT INTO detected_events (id, user_id, session_id, title, description, starts_at, conflict, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.UserID,
		event.SessionID,
		event.Title,
		event.Description,
		event.StartsAt,
		event.Conflict,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListByUser(ctx context.Context, userID uuid.UUID, includeCancelled bool) ([]domain.DetectedEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM detected_events
		WHERE user_id = $1 AND (is_cancelled = FALSE OR $2)
		ORDER BY starts_at ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, includeCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []domain.DetectedEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

func (r *EventRepository) Confirm(ctx context.Context, id, userID uuid.UUID) error {
	query := `
		UPDATE detected_events
		SET is_confirmed = TRUE
		WHERE id = $1 AND user_id = $2 AND is_cancelled = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to confirm event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *EventRepository) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	query := `
		UPDATE detected_events
		SET is_cancelled = TRUE
		WHERE id = $1 AND user_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to cancel event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *EventRepository) FindOverlapping(ctx context.Context, userID uuid.UUID, start time.Time, window time.Duration) ([]domain.DetectedEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM detected_events
		WHERE user_id = $1
		  AND is_cancelled = FALSE
		  AND starts_at BETWEEN $2 AND $3
	`
	rows, err := r.pool.Query(ctx, query, userID, start.Add(-window), start.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping events: %w", err)
	}
	defer rows.Close()

	var events []domain.DetectedEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

func (r *EventRepository) ListDueReminders(ctx context.Context, now time.Time, window time.Duration) ([]domain.DetectedEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM detected_events
		WHERE is_confirmed = TRUE AND is_cancelled = FALSE
		  AND reminded_at IS NULL
		  AND starts_at BETWEEN $1 AND $2
	`
	rows, err := r.pool.Query(ctx, query, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	var events []domain.DetectedEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

func (r *EventRepository) MarkReminded(ctx context.Context, id uuid.UUID) error {
	// Guarded so two sweep ticks racing on the same event notify only once.
	query := `
		UPDATE detected_events
		SET reminded_at = now()
		WHERE id = $1 AND reminded_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark event reminded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}
