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

// Default captions shown until extraction fills in something better.
const (
	defaultImageCaption = "[Screenshot Uploaded]"
	defaultVoiceCaption = "[Audio Uploaded]"
)

// UploadInput describes an already-stored media object being attached to a
// conversation.
type UploadInput struct {
	MediaURL  string
	MediaType domain.MediaType
	Text      string
}

// MediaService appends media turns to a conversation and folds extraction
// results back in. Media never starts a generation cycle; the user decides
// when to ask about what they uploaded.
type MediaService struct {
	chat     *ChatService
	guard    *QuotaGuard
	sessions domain.SessionRepository
	messages domain.MessageRepository
	cache    SessionCache
	bcast    Broadcaster
	now      func() time.Time
}

// NewMediaService creates a new media service
func NewMediaService(
	chat *ChatService,
	guard *QuotaGuard,
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	cache SessionCache,
	bcast Broadcaster,
) *MediaService {
	return &MediaService{
		chat:     chat,
		guard:    guard,
		sessions: sessions,
		messages: messages,
		cache:    cache,
		bcast:    bcast,
		now:      time.Now,
	}
}

// HandleUpload records a media message in the conversation, subject to the
// upload quota, and broadcasts it to subscribers.
func (s *MediaService) HandleUpload(ctx context.Context, userID, conversationID uuid.UUID, in UploadInput) (*domain.Message, error) {
	if strings.TrimSpace(in.MediaURL) == "" {
		return nil, fmt.Errorf("media URL is required")
	}
	if in.MediaType != domain.MediaImage && in.MediaType != domain.MediaVoice {
		return nil, fmt.Errorf("unsupported media type %q", in.MediaType)
	}

	sess, err := s.chat.Resolve(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckUpload(ctx, userID); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		if in.MediaType == domain.MediaVoice {
			text = defaultVoiceCaption
		} else {
			text = defaultImageCaption
		}
	}

	now := s.now()
	mediaURL := in.MediaURL
	mediaType := in.MediaType
	msg := &domain.Message{
		ID:        uuid.New(),
		SessionID: sess.ID,
		Role:      domain.RoleUser,
		Status:    domain.StatusPending,
		Content:   text,
		MediaURL:  &mediaURL,
		MediaType: &mediaType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist media message: %w", err)
	}
	if err := s.sessions.IncrementStats(ctx, sess.ID, 1, MakePreview(text)); err != nil {
		log.Warn().Err(err).Msg("failed to update session stats")
	}
	if err := s.cache.Invalidate(ctx, conversationID, userID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate session caches")
	}
	s.bcast.NewMessage(conversationID, msg)

	log.Info().
		Str("conversation_id", conversationID.String()).
		Str("media_type", string(in.MediaType)).
		Msg("Media message recorded")
	return msg, nil
}

// CompleteExtraction folds an OCR or transcription result into the media
// message it belongs to. Transcripts replace the caption outright; image
// text is attached alongside so the caption survives. Subscribers get a
// message_update either way. The owning session is returned for callers
// that feed the transcript back into the reply cycle.
func (s *MediaService) CompleteExtraction(ctx context.Context, messageID uuid.UUID, extracted string) (*domain.Message, *domain.Session, error) {
	extracted = strings.TrimSpace(extracted)
	if extracted == "" {
		return nil, nil, domain.ErrEmptyMessage
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.MediaType == nil {
		return nil, nil, fmt.Errorf("message %s carries no media", messageID)
	}

	if *msg.MediaType == domain.MediaVoice {
		if err := s.messages.ReplaceContent(ctx, messageID, extracted); err != nil {
			return nil, nil, fmt.Errorf("failed to replace transcript: %w", err)
		}
		msg.Content = extracted
	} else {
		if err := s.messages.AttachExtractedText(ctx, messageID, extracted); err != nil {
			return nil, nil, fmt.Errorf("failed to attach extracted text: %w", err)
		}
		msg.ExtractedText = &extracted
	}

	sess, err := s.sessions.GetByID(ctx, msg.SessionID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load session for extraction broadcast")
		return msg, nil, nil
	}
	if *msg.MediaType == domain.MediaVoice {
		// The preview may now show a stale caption.
		if _, err := s.sessions.RebuildStats(ctx, sess.ID); err != nil {
			log.Warn().Err(err).Msg("failed to rebuild session stats")
		}
	}
	if err := s.cache.Invalidate(ctx, sess.ConversationID, sess.UserID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate session caches")
	}
	s.bcast.MessageUpdate(sess.ConversationID, msg)
	return msg, sess, nil
}
