package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvailland/cyrano/internal/domain"
)

// SettingsRepository implements domain.SettingsRepository
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new user settings repository
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	query := `
		SELECT user_id, language, tones, persona_prompt, hide_notifications, style_fingerprint, style_updated_at, updated_at
		FROM user_settings
		WHERE user_id = $1
	`
	var s domain.UserSettings
	var tones []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.Language,
		&tones,
		&s.PersonaPrompt,
		&s.HideNotifications,
		&s.StyleFingerprint,
		&s.StyleUpdatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if len(tones) > 0 {
		if err := json.Unmarshal(tones, &s.Tones); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tones: %w", err)
		}
	}
	return &s, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, settings *domain.UserSettings) error {
	tones, err := json.Marshal(settings.Tones)
	if err != nil {
		return fmt.Errorf("failed to marshal tones: %w", err)
	}
	if settings.Tones == nil {
		tones = []byte("[]")
	}

	query := `
		INSERT INTO user_settings (user_id, language, tones, persona_prompt, hide_notifications, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE
		SET language = EXCLUDED.language,
		    tones = EXCLUDED.tones,
		    persona_prompt = EXCLUDED.persona_prompt,
		    hide_notifications = EXCLUDED.hide_notifications,
		    updated_at = now()
	`
	_, err = r.pool.Exec(ctx, query,
		settings.UserID,
		settings.Language,
		tones,
		settings.PersonaPrompt,
		settings.HideNotifications,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}

func (r *SettingsRepository) UpdateStyle(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	// Upsert so the style job works for users who never touched settings.
	query := `
		INSERT INTO user_settings (user_id, style_fingerprint, style_updated_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (user_id) DO UPDATE
		SET style_fingerprint = EXCLUDED.style_fingerprint,
		    style_updated_at = now(),
		    updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, userID, fingerprint); err != nil {
		return fmt.Errorf("failed to update style fingerprint: %w", err)
	}
	return nil
}
