package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/config"
	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/metrics"
)

// QuotaCounters is the slice of the Redis quota store the guard depends on.
type QuotaCounters interface {
	IncrDaily(ctx context.Context, userID uuid.UUID, day string) (int64, error)
	DecrDaily(ctx context.Context, userID uuid.UUID, day string) error
	IncrBurst(ctx context.Context, userID uuid.UUID, window time.Duration) (int64, error)
	UploadsUsed(ctx context.Context, userID uuid.UUID, day string) (int64, bool, error)
	SeedUploads(ctx context.Context, userID uuid.UUID, day string, count int64) error
	IncrUploads(ctx context.Context, userID uuid.UUID, day string) (int64, error)
	IncrStyleMessages(ctx context.Context, userID uuid.UUID) (int64, error)
}

// UserCache caches user rows and settings between database reads.
type UserCache interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	SetUser(ctx context.Context, user *domain.User) error
	GetSettings(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error)
	SetSettings(ctx context.Context, userID uuid.UUID, settings *domain.UserSettings) error
}

// QuotaGuard decides whether a message or upload may proceed. Premium
// accounts bypass the daily and upload limits; the burst pace applies to
// everyone. Counter trouble in Redis fails open: a degraded cache should
// slow abuse handling, not take chat down.
type QuotaGuard struct {
	users    domain.UserRepository
	messages domain.MessageRepository
	counters QuotaCounters
	cache    UserCache
	recorder *metrics.Recorder
	cfg      config.QuotaConfig
	now      func() time.Time
}

// NewQuotaGuard creates a new quota guard
func NewQuotaGuard(
	users domain.UserRepository,
	messages domain.MessageRepository,
	counters QuotaCounters,
	cache UserCache,
	recorder *metrics.Recorder,
	cfg config.QuotaConfig,
) *QuotaGuard {
	return &QuotaGuard{
		users:    users,
		messages: messages,
		counters: counters,
		cache:    cache,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// day returns the current calendar day on the server clock. Daily keys
// roll over at UTC midnight.
func (g *QuotaGuard) day() string {
	return g.now().UTC().Format("2006-01-02")
}

// CheckMessage validates one inbound text. A nil return consumes one unit
// of daily quota for free accounts; denials consume nothing.
func (g *QuotaGuard) CheckMessage(ctx context.Context, userID uuid.UUID, text string) error {
	n, err := g.counters.IncrBurst(ctx, userID, g.cfg.BurstWindow)
	if err != nil {
		log.Error().Err(err).Msg("failed to bump burst counter")
	} else if g.cfg.BurstLimit > 0 && n > int64(g.cfg.BurstLimit) {
		g.recorder.IncQuotaRejection("burst")
		return domain.ErrTooManyRequests
	}

	premium, err := g.premium(ctx, userID)
	if err != nil {
		return err
	}
	if premium {
		return nil
	}

	if utf8.RuneCountInString(text) > g.cfg.MaxMessageChars {
		g.recorder.IncQuotaRejection("too_long")
		return domain.ErrMessageTooLong
	}

	day := g.day()
	count, err := g.counters.IncrDaily(ctx, userID, day)
	if err != nil {
		log.Error().Err(err).Msg("failed to bump daily counter")
		return nil
	}
	if count > int64(g.cfg.FreeDailyMessages) {
		if derr := g.counters.DecrDaily(ctx, userID, day); derr != nil {
			log.Error().Err(derr).Msg("failed to release daily counter")
		}
		g.recorder.IncQuotaRejection("daily_limit")
		return domain.ErrQuotaExceeded
	}
	return nil
}

// CheckUpload enforces the daily media quota and consumes one unit. The
// Redis counter is authoritative; a cold counter is seeded from the message
// log before the check, so restarts cannot reset anyone's allowance.
func (g *QuotaGuard) CheckUpload(ctx context.Context, userID uuid.UUID) error {
	premium, err := g.premium(ctx, userID)
	if err != nil {
		return err
	}
	if premium {
		return nil
	}

	day := g.day()
	used, found, err := g.counters.UploadsUsed(ctx, userID, day)
	if err != nil {
		log.Error().Err(err).Msg("failed to read upload counter")
		return nil
	}
	if !found {
		midnight := g.now().UTC().Truncate(24 * time.Hour)
		dbCount, err := g.messages.CountMediaSince(ctx, userID, midnight)
		if err != nil {
			return fmt.Errorf("failed to seed upload counter: %w", err)
		}
		if serr := g.counters.SeedUploads(ctx, userID, day, int64(dbCount)); serr != nil {
			log.Error().Err(serr).Msg("failed to seed upload counter")
		}
		used = int64(dbCount)
	}

	if used >= int64(g.cfg.FreeDailyUploads) {
		g.recorder.IncQuotaRejection("upload_limit")
		return domain.ErrUploadQuota
	}
	if _, err := g.counters.IncrUploads(ctx, userID, day); err != nil {
		log.Error().Err(err).Msg("failed to bump upload counter")
	}
	return nil
}

// CountStyleMessage bumps the style-refresh counter and returns the
// lifetime total of counted user messages.
func (g *QuotaGuard) CountStyleMessage(ctx context.Context, userID uuid.UUID) (int64, error) {
	return g.counters.IncrStyleMessages(ctx, userID)
}

// premium resolves the user's premium flag, cache first.
func (g *QuotaGuard) premium(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := g.cache.GetUser(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read cached user")
	}
	if user == nil {
		user, err = g.users.Get(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("failed to load user: %w", err)
		}
		if cerr := g.cache.SetUser(ctx, user); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to cache user")
		}
	}
	return user.Premium(g.now()), nil
}
