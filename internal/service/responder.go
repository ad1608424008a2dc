package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/config"
	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/llm"
	"github.com/mvailland/cyrano/internal/metrics"
	"github.com/mvailland/cyrano/internal/pipeline"
	"github.com/mvailland/cyrano/internal/repository/redis"
)

// failureReply is stored and broadcast when a generation cycle gives up.
const failureReply = "Sorry, I couldn't come up with a reply. Please try again."

// Broadcaster fans session events out to connected clients. Implemented by
// the websocket hub; a no-op implementation is fine for offline tooling.
type Broadcaster interface {
	NewMessage(conversationID uuid.UUID, msg *domain.Message)
	MessageUpdate(conversationID uuid.UUID, msg *domain.Message)
}

// Locker is the distributed mutex guarding one generation cycle per
// session.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Enqueuer accepts side-effect jobs. Enqueue reports false when the queue
// is saturated; callers drop the job rather than block the reply path.
type Enqueuer interface {
	Enqueue(job pipeline.Job) bool
}

// InboundMessage is one chat turn as received from the gateway.
type InboundMessage struct {
	ConversationID *uuid.UUID
	TargetID       *uuid.UUID
	Text           string
	Tone           string
}

// Responder drives the reply cycle for inbound chat messages: quota, user
// message persistence, the generation lock, the provider call with retry,
// terminal persistence and broadcasts, then side-effect jobs.
type Responder struct {
	chat      *ChatService
	guard     *QuotaGuard
	sessions  domain.SessionRepository
	messages  domain.MessageRepository
	settings  domain.SettingsRepository
	cache     SessionCache
	userCache UserCache
	locker    Locker
	router    *llm.Router
	retry     *llm.RetryPolicy
	prompts   *llm.PromptBuilder
	queue     Enqueuer
	bcast     Broadcaster
	recorder  *metrics.Recorder
	cfg       config.ChatConfig
	now       func() time.Time
}

// NewResponder creates a new responder service
func NewResponder(
	chat *ChatService,
	guard *QuotaGuard,
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	settings domain.SettingsRepository,
	cache SessionCache,
	userCache UserCache,
	locker Locker,
	router *llm.Router,
	prompts *llm.PromptBuilder,
	queue Enqueuer,
	bcast Broadcaster,
	recorder *metrics.Recorder,
	cfg config.ChatConfig,
) *Responder {
	retry := llm.NewRetryPolicy(llm.RetryConfig{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		InitialDelay:  cfg.Retry.InitialDelay,
		MaxDelay:      cfg.Retry.MaxDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		Jitter:        true,
	})
	return &Responder{
		chat:      chat,
		guard:     guard,
		sessions:  sessions,
		messages:  messages,
		settings:  settings,
		cache:     cache,
		userCache: userCache,
		locker:    locker,
		router:    router,
		retry:     retry,
		prompts:   prompts,
		queue:     queue,
		bcast:     bcast,
		recorder:  recorder,
		cfg:       cfg,
		now:       time.Now,
	}
}

// HandleInbound runs the synchronous half of a chat turn. It resolves or
// creates the session, applies quota, persists the user message, and takes
// the generation lock before spawning the reply cycle. A held lock is
// reported as domain.ErrBusy without starting a second cycle; the user
// message is still persisted. The returned message is the caller's to echo.
func (r *Responder) HandleInbound(ctx context.Context, userID uuid.UUID, in InboundMessage) (*domain.Session, *domain.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		r.recorder.IncQuotaRejection("empty")
		return nil, nil, domain.ErrEmptyMessage
	}

	// 1. Resolve the session, or open a new one when none was addressed
	var sess *domain.Session
	var err error
	if in.ConversationID != nil {
		sess, err = r.chat.Resolve(ctx, userID, *in.ConversationID)
	} else {
		sess, err = r.chat.StartSession(ctx, userID, in.TargetID)
	}
	if err != nil {
		return nil, nil, err
	}
	isFirst := sess.MessageCount == 0

	// 2. Quota before any write, so a rejected turn leaves no trace
	if err := r.guard.CheckMessage(ctx, userID, text); err != nil {
		return sess, nil, err
	}

	// 3. Persist the user turn
	now := r.now()
	userMsg := &domain.Message{
		ID:        uuid.New(),
		SessionID: sess.ID,
		Role:      domain.RoleUser,
		Status:    domain.StatusPending,
		Content:   text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.messages.Create(ctx, userMsg); err != nil {
		return sess, nil, fmt.Errorf("failed to persist message: %w", err)
	}
	if err := r.sessions.IncrementStats(ctx, sess.ID, 1, MakePreview(text)); err != nil {
		log.Warn().Err(err).Msg("failed to update session stats")
	}
	sess.MessageCount++
	if err := r.cache.Invalidate(ctx, sess.ConversationID, userID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate session caches")
	}

	styleDue := r.countStyle(ctx, userID)

	// 4. One generation per session. Losing the race is a synchronous
	// rejection, not a queue.
	lockKey := redis.GenerationKey(sess.ID)
	token, ok, err := r.locker.Acquire(ctx, lockKey, r.cfg.LockTTL)
	if err != nil {
		return sess, userMsg, fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !ok {
		return sess, userMsg, domain.ErrBusy
	}

	go r.generate(sess, text, in.Tone, isFirst, styleDue, lockKey, token)

	return sess, userMsg, nil
}

// Respond runs a generation cycle against an already persisted user turn.
// This is the path a voice note takes when its transcript arrives flagged
// for a reply: the turn exists, so only quota, the lock and the cycle run.
func (r *Responder) Respond(ctx context.Context, sess *domain.Session, userMsg *domain.Message) error {
	text := strings.TrimSpace(userMsg.Content)
	if text == "" {
		r.recorder.IncQuotaRejection("empty")
		return domain.ErrEmptyMessage
	}
	if err := r.guard.CheckMessage(ctx, sess.UserID, text); err != nil {
		return err
	}

	// The turn is already counted in the session stats.
	isFirst := sess.MessageCount <= 1
	styleDue := r.countStyle(ctx, sess.UserID)

	lockKey := redis.GenerationKey(sess.ID)
	token, ok, err := r.locker.Acquire(ctx, lockKey, r.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !ok {
		return domain.ErrBusy
	}

	go r.generate(sess, text, "", isFirst, styleDue, lockKey, token)
	return nil
}

// countStyle bumps the rolling user-message counter and reports whether a
// style refresh falls due on this turn.
func (r *Responder) countStyle(ctx context.Context, userID uuid.UUID) bool {
	if r.cfg.StyleEvery <= 0 {
		return false
	}
	n, err := r.guard.CountStyleMessage(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to count style message")
		return false
	}
	return n%int64(r.cfg.StyleEvery) == 0
}

// generate runs the asynchronous half of the cycle. It owns the generation
// lock and releases it on every exit path. The parent request context is
// deliberately not inherited: a client disconnect must not cancel a cycle
// other subscribers are watching.
func (r *Responder) generate(sess *domain.Session, text, tone string, isFirst, styleDue bool, lockKey, lockToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.GenerationTimeout)
	defer cancel()
	defer func() {
		if err := r.locker.Release(context.Background(), lockKey, lockToken); err != nil {
			log.Error().Err(err).
				Str("conversation_id", sess.ConversationID.String()).
				Msg("failed to release generation lock")
		}
	}()

	// 1. Placeholder row first, so clients hold a real ID to watch
	now := r.now()
	placeholder := &domain.Message{
		ID:        uuid.New(),
		SessionID: sess.ID,
		Role:      domain.RoleAssistant,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.messages.Create(ctx, placeholder); err != nil {
		log.Error().Err(err).Msg("failed to create assistant placeholder")
		return
	}
	if err := r.messages.MarkProcessing(ctx, placeholder.ID); err != nil {
		log.Error().Err(err).Msg("failed to mark placeholder processing")
		r.finishFailure(ctx, sess, placeholder)
		return
	}
	placeholder.Status = domain.StatusProcessing
	if err := r.cache.InvalidateHistory(ctx, sess.ConversationID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate history cache")
	}
	r.bcast.NewMessage(sess.ConversationID, placeholder)

	// 2. Assemble the prompt from settings, target profile and history
	inputs := r.promptInputs(ctx, sess, tone)
	history, err := r.promptHistory(ctx, sess, placeholder.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load prompt history")
		r.finishFailure(ctx, sess, placeholder)
		return
	}
	req := llm.Request{
		Messages:    r.prompts.Build(inputs, history),
		MaxTokens:   r.cfg.ReplyMaxTokens,
		Temperature: r.cfg.Temperature,
	}

	// 3. Call the provider with retry
	provider, err := r.router.GetProvider("")
	if err != nil {
		log.Error().Err(err).Msg("no usable LLM provider")
		r.finishFailure(ctx, sess, placeholder)
		return
	}
	model := provider.DefaultModel()

	start := time.Now()
	resp, err := r.retry.Do(ctx, func(ctx context.Context) (*llm.Response, error) {
		return provider.Chat(ctx, req, model)
	})
	elapsed := time.Since(start)

	if err != nil {
		r.recorder.ObserveGeneration(provider.Name(), model, "failed", llm.TypeOf(err).String(), 0, elapsed)
		log.Error().Err(err).
			Str("provider", provider.Name()).
			Str("conversation_id", sess.ConversationID.String()).
			Msg("generation failed")
		r.finishFailure(ctx, sess, placeholder)
		return
	}
	r.recorder.ObserveGeneration(provider.Name(), resp.Model, "completed", "", resp.TokensUsed, elapsed)

	// 4. Terminal persistence, broadcast, then follow-up jobs
	if err := r.messages.Complete(ctx, placeholder.ID, resp.Content, resp.TokensUsed, resp.Model); err != nil {
		log.Error().Err(err).Msg("failed to persist reply")
		r.finishFailure(ctx, sess, placeholder)
		return
	}
	placeholder.Status = domain.StatusCompleted
	placeholder.Content = resp.Content
	placeholder.Model = resp.Model
	placeholder.TokensUsed = resp.TokensUsed
	r.bumpStats(ctx, sess, resp.Content)
	r.bcast.MessageUpdate(sess.ConversationID, placeholder)

	r.enqueueFollowups(sess, text, isFirst, styleDue)
}

// finishFailure drives the placeholder to failed with a canned apology.
// Failed cycles never spawn follow-up jobs.
func (r *Responder) finishFailure(ctx context.Context, sess *domain.Session, placeholder *domain.Message) {
	if err := r.messages.Fail(ctx, placeholder.ID, failureReply); err != nil {
		log.Error().Err(err).Msg("failed to mark message failed")
		return
	}
	placeholder.Status = domain.StatusFailed
	placeholder.Content = failureReply
	r.bumpStats(ctx, sess, failureReply)
	r.bcast.MessageUpdate(sess.ConversationID, placeholder)
}

func (r *Responder) bumpStats(ctx context.Context, sess *domain.Session, content string) {
	if err := r.sessions.IncrementStats(ctx, sess.ID, 1, MakePreview(content)); err != nil {
		log.Warn().Err(err).Msg("failed to update session stats")
	}
	if err := r.cache.Invalidate(ctx, sess.ConversationID, sess.UserID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate session caches")
	}
}

// promptInputs gathers persona, tone, language, style and target context.
// Everything here is best-effort; a missing profile degrades the prompt,
// never the cycle.
func (r *Responder) promptInputs(ctx context.Context, sess *domain.Session, tone string) llm.PromptInputs {
	settings := r.loadSettings(ctx, sess.UserID)
	in := llm.PromptInputs{
		Persona:  settings.PersonaPrompt,
		Tones:    settings.Tones,
		Language: settings.Language,
		Style:    settings.StyleFingerprint,
	}
	if tone != "" {
		in.Tones = []string{tone}
	}
	if sess.TargetID != nil {
		detail, err := r.chat.GetDetail(ctx, sess.UserID, sess.ConversationID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load target context")
		} else if detail.Target != nil {
			in.TargetName = detail.Target.Name
			in.TargetLikes = detail.Target.Likes
			in.TargetDetails = detail.Target.Details
			in.TargetMentions = detail.Target.Mentions
			in.TargetFacts = detail.Target.Preferences
		}
	}
	return in
}

func (r *Responder) loadSettings(ctx context.Context, userID uuid.UUID) *domain.UserSettings {
	cached, err := r.userCache.GetSettings(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read cached settings")
	}
	if cached != nil {
		return cached
	}
	settings, err := r.settings.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("failed to load user settings")
		}
		return &domain.UserSettings{UserID: userID}
	}
	if cerr := r.userCache.SetSettings(ctx, userID, settings); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to cache settings")
	}
	return settings
}

// promptHistory renders recent turns for the model, newest first. The
// fresh placeholder, failed turns and empty rows are skipped; media turns
// carry their extracted text inline.
func (r *Responder) promptHistory(ctx context.Context, sess *domain.Session, placeholderID uuid.UUID) ([]llm.ChatMessage, error) {
	recent, err := r.messages.ListRecent(ctx, sess.ID, r.cfg.HistoryDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	out := make([]llm.ChatMessage, 0, len(recent))
	for _, m := range recent {
		if m.ID == placeholderID || m.Status == domain.StatusFailed {
			continue
		}
		content := m.Content
		if m.ExtractedText != nil && *m.ExtractedText != "" {
			if m.MediaType != nil && *m.MediaType == domain.MediaVoice {
				content = llm.AnnotateVoice(content, *m.ExtractedText)
			} else {
				content = llm.AnnotateImage(content, *m.ExtractedText)
			}
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		role := llm.RoleUser
		if m.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.ChatMessage{Role: role, Content: content})
	}
	return out, nil
}

func (r *Responder) enqueueFollowups(sess *domain.Session, text string, isFirst, styleDue bool) {
	base := pipeline.Job{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		ConversationID: sess.ConversationID,
		TargetID:       sess.TargetID,
		Text:           text,
	}

	kinds := make([]pipeline.Kind, 0, 4)
	if isFirst {
		kinds = append(kinds, pipeline.KindTitle)
	}
	if llm.HasTemporalCue(text) {
		kinds = append(kinds, pipeline.KindEvents)
	}
	if sess.TargetID != nil {
		kinds = append(kinds, pipeline.KindEnrich)
	}
	if styleDue {
		kinds = append(kinds, pipeline.KindStyle)
	}

	for _, kind := range kinds {
		job := base
		job.Kind = kind
		if !r.queue.Enqueue(job) {
			log.Warn().
				Str("kind", string(kind)).
				Str("conversation_id", sess.ConversationID.String()).
				Msg("pipeline queue full, dropping job")
		}
	}
}
