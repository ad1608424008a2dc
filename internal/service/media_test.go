package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mvailland/cyrano/internal/config"
	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/metrics"
)

type mediaFixture struct {
	sessions  *MockSessionRepository
	messages  *MockMessageRepository
	counters  *MockQuotaCounters
	userCache *MockUserCache
	cache     *MockSessionCache
	bcast     *MockBroadcaster
	svc       *MediaService
}

func newMediaFixture() *mediaFixture {
	f := &mediaFixture{
		sessions:  new(MockSessionRepository),
		messages:  new(MockMessageRepository),
		counters:  new(MockQuotaCounters),
		userCache: new(MockUserCache),
		cache:     new(MockSessionCache),
		bcast:     new(MockBroadcaster),
	}
	chat := NewChatService(f.sessions, f.messages, new(MockProfileRepository), f.cache, 20)
	guard := &QuotaGuard{
		messages: f.messages,
		counters: f.counters,
		cache:    f.userCache,
		recorder: metrics.NewRecorder(prometheus.NewRegistry()),
		cfg:      config.QuotaConfig{FreeDailyUploads: 5},
		now:      time.Now,
	}
	f.svc = NewMediaService(chat, guard, f.sessions, f.messages, f.cache, f.bcast)
	return f
}

func TestMediaService_HandleUpload(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	conversationID := uuid.New()
	sess := &domain.Session{ID: uuid.New(), ConversationID: conversationID, UserID: userID}
	premium := &domain.User{ID: userID, IsPremium: true}

	t.Run("records a captioned screenshot", func(t *testing.T) {
		f := newMediaFixture()

		f.cache.On("GetSession", ctx, conversationID, userID).Return(sess, nil)
		f.userCache.On("GetUser", ctx, userID).Return(premium, nil)
		f.messages.On("Create", ctx, mock.MatchedBy(func(m *domain.Message) bool {
			return m.Role == domain.RoleUser && m.MediaType != nil && *m.MediaType == domain.MediaImage
		})).Return(nil)
		f.sessions.On("IncrementStats", ctx, sess.ID, 1, "her reply from last night").Return(nil)
		f.cache.On("Invalidate", ctx, conversationID, userID).Return(nil)
		f.bcast.On("NewMessage", conversationID, mock.Anything)

		msg, err := f.svc.HandleUpload(ctx, userID, conversationID, UploadInput{
			MediaURL:  "https://cdn.example.com/u/shot.png",
			MediaType: domain.MediaImage,
			Text:      "her reply from last night",
		})
		assert.NoError(t, err)
		assert.Equal(t, "her reply from last night", msg.Content)
		assert.Equal(t, "https://cdn.example.com/u/shot.png", *msg.MediaURL)
		f.bcast.AssertExpectations(t)
	})

	t.Run("empty caption gets the default placeholder", func(t *testing.T) {
		f := newMediaFixture()

		f.cache.On("GetSession", ctx, conversationID, userID).Return(sess, nil)
		f.userCache.On("GetUser", ctx, userID).Return(premium, nil)
		f.messages.On("Create", ctx, mock.AnythingOfType("*domain.Message")).Return(nil)
		f.sessions.On("IncrementStats", ctx, sess.ID, 1, mock.AnythingOfType("string")).Return(nil)
		f.cache.On("Invalidate", ctx, conversationID, userID).Return(nil)
		f.bcast.On("NewMessage", conversationID, mock.Anything)

		msg, err := f.svc.HandleUpload(ctx, userID, conversationID, UploadInput{
			MediaURL:  "https://cdn.example.com/u/note.ogg",
			MediaType: domain.MediaVoice,
		})
		assert.NoError(t, err)
		assert.Equal(t, defaultVoiceCaption, msg.Content)
	})

	t.Run("rejects a missing URL", func(t *testing.T) {
		f := newMediaFixture()

		_, err := f.svc.HandleUpload(ctx, userID, conversationID, UploadInput{MediaType: domain.MediaImage})
		assert.Error(t, err)
		f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects an unknown media type", func(t *testing.T) {
		f := newMediaFixture()

		_, err := f.svc.HandleUpload(ctx, userID, conversationID, UploadInput{
			MediaURL:  "https://cdn.example.com/u/clip.mp4",
			MediaType: domain.MediaType("video"),
		})
		assert.Error(t, err)
	})

	t.Run("upload quota denies before any write", func(t *testing.T) {
		f := newMediaFixture()

		f.cache.On("GetSession", ctx, conversationID, userID).Return(sess, nil)
		f.userCache.On("GetUser", ctx, userID).Return(&domain.User{ID: userID}, nil)
		f.counters.On("UploadsUsed", ctx, userID, mock.AnythingOfType("string")).Return(int64(5), true, nil)

		_, err := f.svc.HandleUpload(ctx, userID, conversationID, UploadInput{
			MediaURL:  "https://cdn.example.com/u/shot.png",
			MediaType: domain.MediaImage,
		})
		assert.ErrorIs(t, err, domain.ErrUploadQuota)
		f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestMediaService_CompleteExtraction(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	conversationID := uuid.New()
	sessionID := uuid.New()
	messageID := uuid.New()
	sess := &domain.Session{ID: sessionID, ConversationID: conversationID, UserID: userID}

	t.Run("transcript replaces the voice caption", func(t *testing.T) {
		f := newMediaFixture()
		voice := domain.MediaVoice
		stored := &domain.Message{
			ID:        messageID,
			SessionID: sessionID,
			Role:      domain.RoleUser,
			Content:   defaultVoiceCaption,
			MediaType: &voice,
		}

		f.messages.On("Get", ctx, messageID).Return(stored, nil)
		f.messages.On("ReplaceContent", ctx, messageID, "see you friday at eight").Return(nil)
		f.sessions.On("GetByID", ctx, sessionID).Return(sess, nil)
		f.sessions.On("RebuildStats", ctx, sessionID).Return(sess, nil)
		f.cache.On("Invalidate", ctx, conversationID, userID).Return(nil)
		f.bcast.On("MessageUpdate", conversationID, mock.Anything)

		msg, gotSess, err := f.svc.CompleteExtraction(ctx, messageID, "see you friday at eight")
		assert.NoError(t, err)
		assert.Equal(t, "see you friday at eight", msg.Content)
		assert.Equal(t, sess, gotSess)
		f.sessions.AssertCalled(t, "RebuildStats", ctx, sessionID)
	})

	t.Run("OCR text attaches beside the image caption", func(t *testing.T) {
		f := newMediaFixture()
		image := domain.MediaImage
		stored := &domain.Message{
			ID:        messageID,
			SessionID: sessionID,
			Role:      domain.RoleUser,
			Content:   "check this out",
			MediaType: &image,
		}

		f.messages.On("Get", ctx, messageID).Return(stored, nil)
		f.messages.On("AttachExtractedText", ctx, messageID, "Are we still on for tonight?").Return(nil)
		f.sessions.On("GetByID", ctx, sessionID).Return(sess, nil)
		f.cache.On("Invalidate", ctx, conversationID, userID).Return(nil)
		f.bcast.On("MessageUpdate", conversationID, mock.Anything)

		msg, _, err := f.svc.CompleteExtraction(ctx, messageID, "Are we still on for tonight?")
		assert.NoError(t, err)
		assert.Equal(t, "check this out", msg.Content)
		assert.Equal(t, "Are we still on for tonight?", *msg.ExtractedText)
		f.sessions.AssertNotCalled(t, "RebuildStats", mock.Anything, mock.Anything)
	})

	t.Run("empty extraction is rejected", func(t *testing.T) {
		f := newMediaFixture()

		_, _, err := f.svc.CompleteExtraction(ctx, messageID, "   ")
		assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	})

	t.Run("non-media message is rejected", func(t *testing.T) {
		f := newMediaFixture()
		stored := &domain.Message{ID: messageID, SessionID: sessionID, Role: domain.RoleUser, Content: "plain text"}

		f.messages.On("Get", ctx, messageID).Return(stored, nil)

		_, _, err := f.svc.CompleteExtraction(ctx, messageID, "anything")
		assert.Error(t, err)
		f.messages.AssertNotCalled(t, "ReplaceContent", mock.Anything, mock.Anything, mock.Anything)
	})
}
