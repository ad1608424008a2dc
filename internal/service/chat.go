package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/domain"
)

const maxTitleLength = 255

// SessionCache is the slice of the Redis layer the chat read models live
// in. Mutations go through Invalidate, never through Set.
type SessionCache interface {
	GetSession(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Session, error)
	SetSession(ctx context.Context, session *domain.Session) error
	GetDetail(ctx context.Context, conversationID, userID uuid.UUID) (*domain.SessionDetail, error)
	SetDetail(ctx context.Context, detail *domain.SessionDetail) error
	GetHistory(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error)
	SetHistory(ctx context.Context, conversationID uuid.UUID, messages []domain.Message) error
	InvalidateHistory(ctx context.Context, conversationID uuid.UUID) error
	Invalidate(ctx context.Context, conversationID, userID uuid.UUID) error
}

// ChatService owns the session read and management surface: resolution by
// conversation ID, history rendering, renames, deletes and stat repair.
type ChatService struct {
	sessions     domain.SessionRepository
	messages     domain.MessageRepository
	profiles     domain.ProfileRepository
	cache        SessionCache
	historyDepth int
	now          func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	profiles domain.ProfileRepository,
	cache SessionCache,
	historyDepth int,
) *ChatService {
	return &ChatService{
		sessions:     sessions,
		messages:     messages,
		profiles:     profiles,
		cache:        cache,
		historyDepth: historyDepth,
		now:          time.Now,
	}
}

// Resolve returns the session addressed by conversationID if the user owns
// it, reading through the session cache.
func (s *ChatService) Resolve(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Session, error) {
	cached, err := s.cache.GetSession(ctx, conversationID, userID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read cached session")
	}
	if cached != nil {
		return cached, nil
	}

	session, err := s.sessions.GetByConversationID(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if cerr := s.cache.SetSession(ctx, session); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to cache session")
	}
	return session, nil
}

// StartSession creates a session with a fresh conversation ID. An unknown
// or foreign target ID is dropped rather than rejected; the session simply
// starts unlinked.
func (s *ChatService) StartSession(ctx context.Context, userID uuid.UUID, targetID *uuid.UUID) (*domain.Session, error) {
	if targetID != nil {
		if _, err := s.profiles.Get(ctx, *targetID, userID); err != nil {
			log.Warn().Err(err).Str("target_id", targetID.String()).Msg("ignoring unknown target profile")
			targetID = nil
		}
	}

	now := s.now()
	session := &domain.Session{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		UserID:         userID,
		TargetID:       targetID,
		Title:          domain.DefaultSessionTitle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *ChatService) ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Session, error) {
	return s.sessions.ListByUser(ctx, userID, limit, offset)
}

// GetDetail returns the session plus its bound target profile, reading
// through the detail cache.
func (s *ChatService) GetDetail(ctx context.Context, userID, conversationID uuid.UUID) (*domain.SessionDetail, error) {
	cached, err := s.cache.GetDetail(ctx, conversationID, userID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read cached session detail")
	}
	if cached != nil {
		return cached, nil
	}

	session, err := s.Resolve(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	detail := &domain.SessionDetail{Session: *session}
	if session.TargetID != nil {
		target, err := s.profiles.Get(ctx, *session.TargetID, userID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load target profile for detail")
		} else {
			detail.Target = target
		}
	}

	if cerr := s.cache.SetDetail(ctx, detail); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to cache session detail")
	}
	return detail, nil
}

// History returns the rendered recent history for a conversation, oldest
// first, reading through the history cache.
func (s *ChatService) History(ctx context.Context, userID, conversationID uuid.UUID) ([]domain.Message, error) {
	session, err := s.Resolve(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	cached, err := s.cache.GetHistory(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read cached history")
	}
	if cached != nil {
		return cached, nil
	}

	recent, err := s.messages.ListRecent(ctx, session.ID, s.historyDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// ListRecent is newest first; clients replay oldest first.
	history := make([]domain.Message, len(recent))
	for i, m := range recent {
		history[len(recent)-1-i] = m
	}

	if cerr := s.cache.SetHistory(ctx, conversationID, history); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to cache history")
	}
	return history, nil
}

// Rename sets a user-chosen title.
func (s *ChatService) Rename(ctx context.Context, userID, conversationID uuid.UUID, title string) (*domain.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrEmptyMessage
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}

	session, err := s.Resolve(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateTitle(ctx, session.ID, title); err != nil {
		return nil, err
	}
	if cerr := s.cache.Invalidate(ctx, conversationID, userID); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to invalidate session caches")
	}

	session.Title = title
	return session, nil
}

// Delete removes a conversation and everything under it.
func (s *ChatService) Delete(ctx context.Context, userID, conversationID uuid.UUID) error {
	session, err := s.Resolve(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, session.ID, userID); err != nil {
		return err
	}
	if cerr := s.cache.Invalidate(ctx, conversationID, userID); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to invalidate session caches")
	}
	log.Info().
		Str("conversation_id", conversationID.String()).
		Str("user_id", userID.String()).
		Msg("Chat session deleted")
	return nil
}

// DeleteAll removes every conversation the user owns and returns how many
// were deleted.
func (s *ChatService) DeleteAll(ctx context.Context, userID uuid.UUID) (int, error) {
	conversationIDs, err := s.sessions.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, cid := range conversationIDs {
		if cerr := s.cache.Invalidate(ctx, cid, userID); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to invalidate session caches")
		}
	}
	log.Info().
		Str("user_id", userID.String()).
		Int("count", len(conversationIDs)).
		Msg("All chat sessions cleared")
	return len(conversationIDs), nil
}

// RebuildPreview recomputes the denormalized message count and preview from
// the message log. Repair path for drift after partial failures.
func (s *ChatService) RebuildPreview(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Session, error) {
	session, err := s.Resolve(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	rebuilt, err := s.sessions.RebuildStats(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if cerr := s.cache.Invalidate(ctx, conversationID, userID); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to invalidate session caches")
	}
	return rebuilt, nil
}

// MakePreview renders the stored session preview for a message body: the
// first 97 characters with an ellipsis past 100, or a media placeholder
// when the body is empty.
func MakePreview(text string) string {
	if text == "" {
		return "[Image]"
	}
	runes := []rune(text)
	if len(runes) > 100 {
		return string(runes[:97]) + "..."
	}
	return text
}
