package security

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/domain"
)

// UserCache is the identity cache slice the verifier reads through.
type UserCache interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	SetUser(ctx context.Context, user *domain.User) error
}

// TokenVerifier resolves a bearer token to a known user. The signature is
// checked locally; the user row is read through the identity cache so
// repeated connects stay off the database.
type TokenVerifier struct {
	jwt   *JWTManager
	users domain.UserRepository
	cache UserCache
}

// NewTokenVerifier creates a new token verifier
func NewTokenVerifier(jwt *JWTManager, users domain.UserRepository, cache UserCache) *TokenVerifier {
	return &TokenVerifier{jwt: jwt, users: users, cache: cache}
}

// Verify validates the token and returns the user it names. Any failure
// collapses to domain.ErrUnauthorized except infrastructure errors, which
// surface wrapped.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	claims, err := v.jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	if claims.UserID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	cached, err := v.cache.GetUser(ctx, claims.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read cached user")
	}
	if cached != nil {
		return cached, nil
	}

	user, err := v.users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if cerr := v.cache.SetUser(ctx, user); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to cache user")
	}
	return user, nil
}
