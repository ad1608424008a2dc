package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvailland/cyrano/internal/domain"
)

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, conversation_id, user_id, target_id, title, message_count, last_message_preview, created_at, updated_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.ConversationID,
		&s.UserID,
		&s.TargetID,
		&s.Title,
		&s.MessageCount,
		&s.LastMessagePreview,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO chat_sessions (id, conversation_id, user_id, target_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.ConversationID,
		session.UserID,
		session.TargetID,
		session.Title,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByConversationID(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE conversation_id = $1 AND user_id = $2
	`
	s, err := scanSession(r.pool.QueryRow(ctx, query, conversationID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetByID loads a session by row ID without owner scoping. Internal paths
// only; anything client-addressed goes through GetByConversationID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE id = $1
	`
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

func (r *SessionRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	query := `
		UPDATE chat_sessions
		SET title = $1, updated_at = now()
		WHERE id = $2
	`
	tag, err := r.pool.Exec(ctx, query, title, id)
	if err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReplaceDefaultTitle sets the title only while the session still carries
// the placeholder, so a redelivered title job never clobbers a name the
// user picked or an earlier run already wrote. Returns true when the title
// was written.
func (r *SessionRepository) ReplaceDefaultTitle(ctx context.Context, id uuid.UUID, title string) (bool, error) {
	query := `
		UPDATE chat_sessions
		SET title = $1, updated_at = now()
		WHERE id = $2 AND title = $3
	`
	tag, err := r.pool.Exec(ctx, query, title, id, domain.DefaultSessionTitle)
	if err != nil {
		return false, fmt.Errorf("failed to replace session title: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepository) BindTarget(ctx context.Context, id uuid.UUID, targetID *uuid.UUID) error {
	query := `
		UPDATE chat_sessions
		SET target_id = $1, updated_at = now()
		WHERE id = $2
	`
	tag, err := r.pool.Exec(ctx, query, targetID, id)
	if err != nil {
		return fmt.Errorf("failed to bind target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) IncrementStats(ctx context.Context, id uuid.UUID, delta int, preview string) error {
	query := `
		UPDATE chat_sessions
		SET message_count = message_count + $1, last_message_preview = $2, updated_at = now()
		WHERE id = $3
	`
	tag, err := r.pool.Exec(ctx, query, delta, preview, id)
	if err != nil {
		return fmt.Errorf("failed to update session stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) RebuildStats(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	// The preview subquery mirrors the write path: newest message wins and
	// media-only messages fall back to a placeholder.
	query := `
		UPDATE chat_sessions s
		SET message_count = (
			SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id
		),
		last_message_preview = COALESCE((
			SELECT CASE
				WHEN m.content <> '' AND length(m.content) > 100 THEN left(m.content, 97) || '...'
				WHEN m.content <> '' THEN m.content
				ELSE '[Image]'
			END
			FROM messages m
			WHERE m.session_id = s.id
			ORDER BY m.created_at DESC
			LIMIT 1
		), ''),
		updated_at = now()
		WHERE s.id = $1
		RETURNING ` + sessionColumns + `
	`
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to rebuild session stats: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	query := `DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAllByUser removes every session the user owns and returns the
// conversation IDs of the deleted rows so callers can invalidate caches.
func (r *SessionRepository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `DELETE FROM chat_sessions WHERE user_id = $1 RETURNING conversation_id`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
