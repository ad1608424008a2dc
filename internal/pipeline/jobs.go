package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/config"
	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/llm"
	"github.com/mvailland/cyrano/internal/notify"
	"github.com/mvailland/cyrano/internal/repository/redis"
)

const (
	profileLockTTL  = 30 * time.Second
	sampleDepth     = 20
	minStyleSamples = 3
)

// SessionInvalidator drops the cached read models for one conversation.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, conversationID, userID uuid.UUID) error
}

// SettingsInvalidator drops a user's cached settings.
type SettingsInvalidator interface {
	InvalidateSettings(ctx context.Context, userID uuid.UUID) error
}

// Locker guards profile enrichment so concurrent merges cannot interleave.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Jobs holds the handlers for every job kind. One instance serves the
// whole pool; handlers keep their state in the stores they mutate.
type Jobs struct {
	sessions  domain.SessionRepository
	messages  domain.MessageRepository
	settings  domain.SettingsRepository
	profiles  domain.ProfileRepository
	events    domain.EventRepository
	cache     SessionInvalidator
	userCache SettingsInvalidator
	locker    Locker
	router    *llm.Router
	notifier  notify.Notifier
	cfg       config.PipelineConfig
	now       func() time.Time
}

// NewJobs creates the job handler set
func NewJobs(
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	settings domain.SettingsRepository,
	profiles domain.ProfileRepository,
	events domain.EventRepository,
	cache SessionInvalidator,
	userCache SettingsInvalidator,
	locker Locker,
	router *llm.Router,
	notifier notify.Notifier,
	cfg config.PipelineConfig,
) *Jobs {
	return &Jobs{
		sessions:  sessions,
		messages:  messages,
		settings:  settings,
		profiles:  profiles,
		events:    events,
		cache:     cache,
		userCache: userCache,
		locker:    locker,
		router:    router,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Handle dispatches one job to its kind handler.
func (j *Jobs) Handle(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindTitle:
		return j.handleTitle(ctx, job)
	case KindEvents:
		return j.handleEvents(ctx, job)
	case KindEnrich:
		return j.handleEnrich(ctx, job)
	case KindStyle:
		return j.handleStyle(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// handleTitle names a fresh session after its opening message. The rename
// is guarded on the default title, so a user rename or an earlier delivery
// always wins.
func (j *Jobs) handleTitle(ctx context.Context, job Job) error {
	provider, err := j.router.GetProvider("")
	if err != nil {
		return err
	}
	resp, err := provider.Chat(ctx, llm.BuildTitleRequest(job.Text), provider.DefaultModel())
	if err != nil {
		return fmt.Errorf("failed to generate title: %w", err)
	}
	title := llm.CleanTitle(resp.Content, "")
	if title == "" {
		return nil
	}

	renamed, err := j.sessions.ReplaceDefaultTitle(ctx, job.SessionID, title)
	if err != nil {
		return fmt.Errorf("failed to store title: %w", err)
	}
	if !renamed {
		return nil
	}
	if err := j.cache.Invalidate(ctx, job.ConversationID, job.UserID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate session caches")
	}
	log.Info().
		Str("conversation_id", job.ConversationID.String()).
		Str("title", title).
		Msg("Session titled")
	return nil
}

// handleEvents asks the model whether the message pins down a concrete
// plan and records it as a proposal. An identical proposal in the window
// is a duplicate delivery and is skipped; overlap with a confirmed plan
// sets the conflict flag.
func (j *Jobs) handleEvents(ctx context.Context, job Job) error {
	provider, err := j.router.GetProvider("")
	if err != nil {
		return err
	}
	resp, err := provider.Chat(ctx, llm.BuildEventRequest(job.Text, j.now()), provider.DefaultModel())
	if err != nil {
		return fmt.Errorf("failed to run event extraction: %w", err)
	}
	draft, err := llm.ParseEventDraft(resp.Content)
	if err != nil {
		return fmt.Errorf("failed to parse event draft: %w", err)
	}
	if draft == nil || !draft.Found {
		return nil
	}
	start, err := draft.ParsedStart()
	if err != nil {
		log.Warn().Err(err).Str("raw", draft.StartTime).Msg("unusable event start time, skipping")
		return nil
	}

	nearby, err := j.events.FindOverlapping(ctx, job.UserID, start, j.cfg.ConflictWindow)
	if err != nil {
		return fmt.Errorf("failed to check overlapping events: %w", err)
	}
	conflict := false
	for _, e := range nearby {
		if e.Title == draft.Title && e.StartsAt.Equal(start) {
			return nil
		}
		if e.IsConfirmed {
			conflict = true
		}
	}

	sessionID := job.SessionID
	event := &domain.DetectedEvent{
		ID:          uuid.New(),
		UserID:      job.UserID,
		SessionID:   &sessionID,
		Title:       draft.Title,
		Description: draft.Description,
		StartsAt:    start,
		Conflict:    conflict,
	}
	if err := j.events.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to store detected event: %w", err)
	}

	title := "New plan detected"
	if conflict {
		title = "New plan detected (conflicts with another)"
	}
	j.push(ctx, job.UserID, title, event.Title, map[string]string{"event_id": event.ID.String()})
	return nil
}

// handleEnrich merges freshly mentioned facts into the bound target
// profile. Runs under the per-user profile lock; a held lock fails the
// delivery so the retry lands after the current merge.
func (j *Jobs) handleEnrich(ctx context.Context, job Job) error {
	if job.TargetID == nil {
		return nil
	}

	lockKey := redis.ProfileKey(job.UserID)
	token, ok, err := j.locker.Acquire(ctx, lockKey, profileLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire profile lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("profile for user %s is busy", job.UserID)
	}
	defer func() {
		if rerr := j.locker.Release(context.Background(), lockKey, token); rerr != nil {
			log.Error().Err(rerr).Msg("failed to release profile lock")
		}
	}()

	profile, err := j.profiles.Get(ctx, *job.TargetID, job.UserID)
	if err != nil {
		return err
	}
	samples, err := j.userMessages(ctx, job.SessionID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	provider, err := j.router.GetProvider("")
	if err != nil {
		return err
	}
	resp, err := provider.Chat(ctx, llm.BuildEnrichmentRequest(profile.Name, samples), provider.DefaultModel())
	if err != nil {
		return fmt.Errorf("failed to run profile enrichment: %w", err)
	}
	facts, err := llm.ParseFacts(resp.Content)
	if err != nil {
		return fmt.Errorf("failed to parse facts: %w", err)
	}
	if len(facts) == 0 {
		return nil
	}

	if err := j.profiles.MergePreferences(ctx, profile.ID, facts); err != nil {
		return fmt.Errorf("failed to merge preferences: %w", err)
	}
	// Session detail embeds the profile, so it is stale now.
	if err := j.cache.Invalidate(ctx, job.ConversationID, job.UserID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate session caches")
	}
	log.Info().
		Str("target_id", profile.ID.String()).
		Int("facts", len(facts)).
		Msg("Target profile enriched")
	return nil
}

// handleStyle refreshes the user's writing style fingerprint from their
// recent messages in the triggering session.
func (j *Jobs) handleStyle(ctx context.Context, job Job) error {
	samples, err := j.userMessages(ctx, job.SessionID)
	if err != nil {
		return err
	}
	if len(samples) < minStyleSamples {
		return nil
	}

	provider, err := j.router.GetProvider("")
	if err != nil {
		return err
	}
	resp, err := provider.Chat(ctx, llm.BuildStyleRequest(samples), provider.DefaultModel())
	if err != nil {
		return fmt.Errorf("failed to run style analysis: %w", err)
	}
	fingerprint := strings.TrimSpace(resp.Content)
	if fingerprint == "" {
		return nil
	}

	if err := j.settings.UpdateStyle(ctx, job.UserID, fingerprint); err != nil {
		return fmt.Errorf("failed to store style fingerprint: %w", err)
	}
	if err := j.userCache.InvalidateSettings(ctx, job.UserID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate settings cache")
	}
	return nil
}

// userMessages returns the user's recent non-empty turns in the session,
// oldest first.
func (j *Jobs) userMessages(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	recent, err := j.messages.ListRecent(ctx, sessionID, sampleDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	var out []string
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		if m.Role != domain.RoleUser || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m.Content)
	}
	return out, nil
}

// push delivers a notification unless the user has muted them. Delivery
// problems are logged and swallowed.
func (j *Jobs) push(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) {
	settings, err := j.settings.Get(ctx, userID)
	if err == nil && settings.HideNotifications {
		return
	}
	if err := j.notifier.Send(ctx, userID, title, body, data); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to send notification")
	}
}
