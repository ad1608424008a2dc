package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvailland/cyrano/internal/domain"
)

const (
	userCachePrefix     = "user:"
	settingsCachePrefix = "settings:"

	userCacheTTL     = 5 * time.Minute
	settingsCacheTTL = time.Hour
)

// UserCache caches user rows for token verification and user settings for
// prompt building. Both follow the same discipline as SessionCache: short
// TTLs, delete on mutation.
type UserCache struct {
	client *Client
}

// NewUserCache creates a new user cache
func NewUserCache(client *Client) *UserCache {
	return &UserCache{client: client}
}

// GetUser retrieves a cached user; a miss returns (nil, nil).
func (c *UserCache) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	data, err := c.client.rdb.Get(ctx, userCachePrefix+id.String()).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &u, nil
}

// SetUser caches a user row
func (c *UserCache) SetUser(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return c.client.rdb.Set(ctx, userCachePrefix+user.ID.String(), data, userCacheTTL).Err()
}

// InvalidateUser removes a cached user row
func (c *UserCache) InvalidateUser(ctx context.Context, id uuid.UUID) error {
	return c.client.rdb.Del(ctx, userCachePrefix+id.String()).Err()
}

// GetSettings retrieves cached user settings; a miss returns (nil, nil).
func (c *UserCache) GetSettings(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	data, err := c.client.rdb.Get(ctx, settingsCachePrefix+userID.String()).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var s domain.UserSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &s, nil
}

// SetSettings caches user settings
func (c *UserCache) SetSettings(ctx context.Context, userID uuid.UUID, settings *domain.UserSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return c.client.rdb.Set(ctx, settingsCachePrefix+userID.String(), data, settingsCacheTTL).Err()
}

// InvalidateSettings removes cached settings after an update
func (c *UserCache) InvalidateSettings(ctx context.Context, userID uuid.UUID) error {
	return c.client.rdb.Del(ctx, settingsCachePrefix+userID.String()).Err()
}
