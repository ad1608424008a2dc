package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	dailyQuotaPrefix  = "quota:msg:"
	burstQuotaPrefix  = "quota:burst:"
	uploadQuotaPrefix = "quota:upload:"
	styleCountPrefix  = "style:count:"

	// Daily keys embed the date, so the TTL only has to outlive the day
	// they count.
	dailyQuotaTTL = 48 * time.Hour
	styleCountTTL = 30 * 24 * time.Hour
)

// QuotaStore keeps the per-user counters behind the quota guard: daily
// messages, short burst window, daily uploads and the style refresh
// cadence. Counters are advisory state, not the source of truth, so every
// key expires on its own.
type QuotaStore struct {
	client *Client
}

// NewQuotaStore creates a new quota store
func NewQuotaStore(client *Client) *QuotaStore {
	return &QuotaStore{client: client}
}

func dailyKey(userID uuid.UUID, day string) string {
	return fmt.Sprintf("%s%s:%s", dailyQuotaPrefix, userID, day)
}

func uploadKey(userID uuid.UUID, day string) string {
	return fmt.Sprintf("%s%s:%s", uploadQuotaPrefix, userID, day)
}

// IncrDaily bumps the user's message counter for the given day and returns
// the new count.
func (q *QuotaStore) IncrDaily(ctx context.Context, userID uuid.UUID, day string) (int64, error) {
	key := dailyKey(userID, day)

	pipe := q.client.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, dailyQuotaTTL)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to bump daily counter: %w", err)
	}
	return incrCmd.Val(), nil
}

// DecrDaily hands a unit back after a denied or aborted send so the user
// is not charged for a message that never happened.
func (q *QuotaStore) DecrDaily(ctx context.Context, userID uuid.UUID, day string) error {
	if err := q.client.rdb.Decr(ctx, dailyKey(userID, day)).Err(); err != nil {
		return fmt.Errorf("failed to release daily counter: %w", err)
	}
	return nil
}

// IncrBurst bumps the short-window counter used to pace AI responses and
// returns the new count.
func (q *QuotaStore) IncrBurst(ctx context.Context, userID uuid.UUID, window time.Duration) (int64, error) {
	key := burstQuotaPrefix + userID.String()

	pipe := q.client.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to bump burst counter: %w", err)
	}
	return incrCmd.Val(), nil
}

// UploadsUsed returns the upload count for the day, or found=false when
// the counter is cold and must be seeded from the database.
func (q *QuotaStore) UploadsUsed(ctx context.Context, userID uuid.UUID, day string) (int64, bool, error) {
	n, err := q.client.rdb.Get(ctx, uploadKey(userID, day)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read upload counter: %w", err)
	}
	return n, true, nil
}

// SeedUploads initializes the upload counter from a database count. SetNX
// keeps a concurrent increment from being overwritten.
func (q *QuotaStore) SeedUploads(ctx context.Context, userID uuid.UUID, day string, count int64) error {
	if err := q.client.rdb.SetNX(ctx, uploadKey(userID, day), count, dailyQuotaTTL).Err(); err != nil {
		return fmt.Errorf("failed to seed upload counter: %w", err)
	}
	return nil
}

// IncrUploads bumps the upload counter for the day and returns the new
// count.
func (q *QuotaStore) IncrUploads(ctx context.Context, userID uuid.UUID, day string) (int64, error) {
	key := uploadKey(userID, day)

	pipe := q.client.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, dailyQuotaTTL)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to bump upload counter: %w", err)
	}
	return incrCmd.Val(), nil
}

// IncrStyleMessages counts user messages toward the periodic style
// refresh and returns the running total.
func (q *QuotaStore) IncrStyleMessages(ctx context.Context, userID uuid.UUID) (int64, error) {
	key := styleCountPrefix + userID.String()

	pipe := q.client.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, styleCountTTL)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to bump style counter: %w", err)
	}
	return incrCmd.Val(), nil
}
