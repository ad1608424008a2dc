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
	sessionCachePrefix = "chat:session:"
	detailCachePrefix  = "chat:detail:"
	historyCachePrefix = "chat:history:"

	sessionCacheTTL = time.Hour
	detailCacheTTL  = time.Hour
	historyCacheTTL = time.Hour
)

// SessionCache is the read-through cache for the three session read models:
// the ownership lookup, the detail view and the rendered history. Writers
// never update entries in place; every mutation deletes and lets the next
// reader repopulate.
type SessionCache struct {
	client *Client
}

// NewSessionCache creates a new session cache
func NewSessionCache(client *Client) *SessionCache {
	return &SessionCache{client: client}
}

func sessionKey(conversationID, userID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", sessionCachePrefix, conversationID, userID)
}

func detailKey(conversationID, userID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", detailCachePrefix, conversationID, userID)
}

func historyKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("%s%s", historyCachePrefix, conversationID)
}

// GetSession retrieves a cached session; a miss returns (nil, nil).
func (c *SessionCache) GetSession(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Session, error) {
	data, err := c.client.rdb.Get(ctx, sessionKey(conversationID, userID)).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// SetSession caches a session under its conversation and owner IDs
func (c *SessionCache) SetSession(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return c.client.rdb.Set(ctx, sessionKey(session.ConversationID, session.UserID), data, sessionCacheTTL).Err()
}

// GetDetail retrieves a cached session detail; a miss returns (nil, nil).
func (c *SessionCache) GetDetail(ctx context.Context, conversationID, userID uuid.UUID) (*domain.SessionDetail, error) {
	data, err := c.client.rdb.Get(ctx, detailKey(conversationID, userID)).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var d domain.SessionDetail
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session detail: %w", err)
	}
	return &d, nil
}

// SetDetail caches a session detail view
func (c *SessionCache) SetDetail(ctx context.Context, detail *domain.SessionDetail) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal session detail: %w", err)
	}
	return c.client.rdb.Set(ctx, detailKey(detail.ConversationID, detail.UserID), data, detailCacheTTL).Err()
}

// GetHistory retrieves cached rendered history, oldest first; a miss
// returns (nil, nil).
func (c *SessionCache) GetHistory(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	data, err := c.client.rdb.Get(ctx, historyKey(conversationID)).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var messages []domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return messages, nil
}

// SetHistory caches rendered history for a conversation
func (c *SessionCache) SetHistory(ctx context.Context, conversationID uuid.UUID, messages []domain.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return c.client.rdb.Set(ctx, historyKey(conversationID), data, historyCacheTTL).Err()
}

// InvalidateHistory removes the cached history for a conversation
func (c *SessionCache) InvalidateHistory(ctx context.Context, conversationID uuid.UUID) error {
	return c.client.rdb.Del(ctx, historyKey(conversationID)).Err()
}

// Invalidate removes every cached read model for a conversation. Called
// after any mutation that touches the session row or its messages.
func (c *SessionCache) Invalidate(ctx context.Context, conversationID, userID uuid.UUID) error {
	return c.client.rdb.Del(ctx,
		sessionKey(conversationID, userID),
		detailKey(conversationID, userID),
		historyKey(conversationID),
	).Err()
}

// FlushAll removes every cached session read model
func (c *SessionCache) FlushAll(ctx context.Context) (int64, error) {
	var deleted int64

	for _, pattern := range []string{
		sessionCachePrefix + "*",
		detailCachePrefix + "*",
		historyCachePrefix + "*",
	} {
		var cursor uint64
		for {
			keys, nextCursor, err := c.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to scan keys: %w", err)
			}

			if len(keys) > 0 {
				count, err := c.client.rdb.Del(ctx, keys...).Result()
				if err != nil {
					return deleted, fmt.Errorf("failed to delete keys: %w", err)
				}
				deleted += count
			}

			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
	}

	return deleted, nil
}
