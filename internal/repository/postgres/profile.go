package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/security"
)

// ProfileRepository implements domain.ProfileRepository. Extracted facts
// are sealed with the profile cipher; only ciphertext reaches the table.
type ProfileRepository struct {
	pool   *pgxpool.Pool
	cipher *security.ProfileCipher
}

// NewProfileRepository creates a new target profile repository
func NewProfileRepository(pool *pgxpool.Pool, cipher *security.ProfileCipher) *ProfileRepository {
	return &ProfileRepository{pool: pool, cipher: cipher}
}

func (r *ProfileRepository) scanProfile(row pgx.Row) (*domain.TargetProfile, error) {
	var p domain.TargetProfile
	var sealed []byte
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&sealed,
		&p.Likes,
		&p.Details,
		&p.Mentions,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Preferences, err = r.cipher.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	return &p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, profile *domain.TargetProfile) error {
	sealed, err := r.cipher.Seal(profile.Preferences)
	if err != nil {
		return fmt.Errorf("failed to seal preferences: %w", err)
	}

	query := `
		INSERT INTO target_profiles (id, user_id, name, preferences, likes, details, mentions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		profile.ID,
		profile.UserID,
		profile.Name,
		sealed,
		profile.Likes,
		profile.Details,
		profile.Mentions,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) Get(ctx context.Context, id, userID uuid.UUID) (*domain.TargetProfile, error) {
	query := `
		SELECT id, user_id, name, preferences, likes, details, mentions, created_at, updated_at
		FROM target_profiles
		WHERE id = $1 AND user_id = $2
	`
	p, err := r.scanProfile(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.TargetProfile, error) {
	query := `
		SELECT id, user_id, name, preferences, likes, details, mentions, created_at, updated_at
		FROM target_profiles
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.TargetProfile
	for rows.Next() {
		p, err := r.scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, nil
}

// MergePreferences appends facts not already present. The read-merge-write
// is safe because callers serialize through the per-user profile lock.
func (r *ProfileRepository) MergePreferences(ctx context.Context, id uuid.UUID, facts []string) error {
	if len(facts) == 0 {
		return nil
	}

	query := `SELECT preferences FROM target_profiles WHERE id = $1`
	var sealed []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(&sealed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to read preferences: %w", err)
	}

	existing, err := r.cipher.Open(sealed)
	if err != nil {
		return fmt.Errorf("failed to open preferences: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p] = true
	}
	merged := existing
	for _, f := range facts {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		merged = append(merged, f)
	}
	if len(merged) == len(existing) {
		return nil
	}

	out, err := r.cipher.Seal(merged)
	if err != nil {
		return fmt.Errorf("failed to seal preferences: %w", err)
	}

	update := `
		UPDATE target_profiles
		SET preferences = $1, updated_at = now()
		WHERE id = $2
	`
	if _, err := r.pool.Exec(ctx, update, out, id); err != nil {
		return fmt.Errorf("failed to merge preferences: %w", err)
	}
	return nil
}
