package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvailland/cyrano/internal/domain"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `id, session_id, role, status, content, media_url, media_type, extracted_text, model, tokens_used, created_at, updated_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID,
		&m.SessionID,
		&m.Role,
		&m.Status,
		&m.Content,
		&m.MediaURL,
		&m.MediaType,
		&m.ExtractedText,
		&m.Model,
		&m.TokensUsed,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (id, session_id, role, status, content, media_url, media_type, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.SessionID,
		message.Role,
		message.Status,
		message.Content,
		message.MediaURL,
		message.MediaType,
		message.Model,
		message.CreatedAt,
		message.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1
	`
	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// ListRecent retrieves up to limit messages for a session, newest first.
// Callers that render history reverse the slice themselves.
func (r *MessageRepository) ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, nil
}

// MarkProcessing moves a pending message to processing. The status guard in
// the WHERE clause keeps the lifecycle forward-only even with a stale caller.
func (r *MessageRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE messages
		SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark message processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *MessageRepository) Complete(ctx context.Context, id uuid.UUID, content string, tokens int, model string) error {
	query := `
		UPDATE messages
		SET status = 'completed', content = $1, tokens_used = $2, model = $3, updated_at = now()
		WHERE id = $4 AND status = 'processing'
	`
	tag, err := r.pool.Exec(ctx, query, content, tokens, model, id)
	if err != nil {
		return fmt.Errorf("failed to complete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *MessageRepository) Fail(ctx context.Context, id uuid.UUID, content string) error {
	query := `
		UPDATE messages
		SET status = 'failed', content = $1, updated_at = now()
		WHERE id = $2 AND status IN ('pending', 'processing')
	`
	tag, err := r.pool.Exec(ctx, query, content, id)
	if err != nil {
		return fmt.Errorf("failed to fail message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *MessageRepository) AttachExtractedText(ctx context.Context, id uuid.UUID, text string) error {
	query := `
		UPDATE messages
		SET extracted_text = $1, updated_at = now()
		WHERE id = $2
	`
	tag, err := r.pool.Exec(ctx, query, text, id)
	if err != nil {
		return fmt.Errorf("failed to attach extracted text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepository) ReplaceContent(ctx context.Context, id uuid.UUID, content string) error {
	query := `
		UPDATE messages
		SET content = $1, updated_at = now()
		WHERE id = $2
	`
	tag, err := r.pool.Exec(ctx, query, content, id)
	if err != nil {
		return fmt.Errorf("failed to replace message content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountMediaSince counts media messages the user created since the given
// time, across all of their sessions.
func (r *MessageRepository) CountMediaSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN chat_sessions s ON s.id = m.session_id
		WHERE s.user_id = $1 AND m.media_type IS NOT NULL AND m.created_at >= $2
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count media messages: %w", err)
	}
	return count, nil
}
