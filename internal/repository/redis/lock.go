package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	generationLockPrefix = "lock:generate:"
	profileLockPrefix    = "lock:profile:"
)

// releaseScript deletes a lock only if the caller still owns it, so a
// holder whose TTL already expired cannot free a lock someone else took.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker implements short-lived mutual exclusion on top of Redis SET NX.
// Every lock carries a TTL so a crashed holder can never wedge its session;
// liveness comes from expiry, safety from the owner token.
type Locker struct {
	client *Client
}

// NewLocker creates a new locker
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// Acquire attempts to take the named lock. It returns an owner token and
// true on success, and "" and false when the lock is already held.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the named lock if token still owns it. Releasing a lock
// that expired or changed hands is not an error.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// GenerationKey returns the lock key guarding response generation for a
// session.
func GenerationKey(sessionID uuid.UUID) string {
	return generationLockPrefix + sessionID.String()
}

// ProfileKey returns the lock key serializing profile enrichment for a
// user.
func ProfileKey(userID uuid.UUID) string {
	return profileLockPrefix + userID.String()
}
