package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/llm"
)

// MockSessionRepository mocks the SessionRepository interface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByConversationID(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Session, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockSessionRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	args := m.Called(ctx, id, title)
	return args.Error(0)
}

func (m *MockSessionRepository) ReplaceDefaultTitle(ctx context.Context, id uuid.UUID, title string) (bool, error) {
	args := m.Called(ctx, id, title)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) BindTarget(ctx context.Context, id uuid.UUID, targetID *uuid.UUID) error {
	args := m.Called(ctx, id, targetID)
	return args.Error(0)
}

func (m *MockSessionRepository) IncrementStats(ctx context.Context, id uuid.UUID, delta int, preview string) error {
	args := m.Called(ctx, id, delta, preview)
	return args.Error(0)
}

func (m *MockSessionRepository) RebuildStats(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockMessageRepository mocks the MessageRepository interface
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepository) ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockMessageRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMessageRepository) Complete(ctx context.Context, id uuid.UUID, content string, tokens int, model string) error {
	args := m.Called(ctx, id, content, tokens, model)
	return args.Error(0)
}

func (m *MockMessageRepository) Fail(ctx context.Context, id uuid.UUID, content string) error {
	args := m.Called(ctx, id, content)
	return args.Error(0)
}

func (m *MockMessageRepository) AttachExtractedText(ctx context.Context, id uuid.UUID, text string) error {
	args := m.Called(ctx, id, text)
	return args.Error(0)
}

func (m *MockMessageRepository) ReplaceContent(ctx context.Context, id uuid.UUID, content string) error {
	args := m.Called(ctx, id, content)
	return args.Error(0)
}

func (m *MockMessageRepository) CountMediaSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

// MockSettingsRepository mocks the SettingsRepository interface
type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSettings), args.Error(1)
}

func (m *MockSettingsRepository) Upsert(ctx context.Context, settings *domain.UserSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockSettingsRepository) UpdateStyle(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	args := m.Called(ctx, userID, fingerprint)
	return args.Error(0)
}

// MockProfileRepository mocks the ProfileRepository interface
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) Create(ctx context.Context, profile *domain.TargetProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfileRepository) Get(ctx context.Context, id, userID uuid.UUID) (*domain.TargetProfile, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TargetProfile), args.Error(1)
}

func (m *MockProfileRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.TargetProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TargetProfile), args.Error(1)
}

func (m *MockProfileRepository) MergePreferences(ctx context.Context, id uuid.UUID, facts []string) error {
	args := m.Called(ctx, id, facts)
	return args.Error(0)
}

// MockEventRepository mocks the EventRepository interface
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, event *domain.DetectedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) ListByUser(ctx context.Context, userID uuid.UUID, includeCancelled bool) ([]domain.DetectedEvent, error) {
	args := m.Called(ctx, userID, includeCancelled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DetectedEvent), args.Error(1)
}

func (m *MockEventRepository) Confirm(ctx context.Context, id, userID uuid.UUID) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockEventRepository) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockEventRepository) FindOverlapping(ctx context.Context, userID uuid.UUID, start time.Time, window time.Duration) ([]domain.DetectedEvent, error) {
	args := m.Called(ctx, userID, start, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DetectedEvent), args.Error(1)
}

func (m *MockEventRepository) ListDueReminders(ctx context.Context, now time.Time, window time.Duration) ([]domain.DetectedEvent, error) {
	args := m.Called(ctx, now, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DetectedEvent), args.Error(1)
}

func (m *MockEventRepository) MarkReminded(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSessionInvalidator mocks the SessionInvalidator interface
type MockSessionInvalidator struct {
	mock.Mock
}

func (m *MockSessionInvalidator) Invalidate(ctx context.Context, conversationID, userID uuid.UUID) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

// MockSettingsInvalidator mocks the SettingsInvalidator interface
type MockSettingsInvalidator struct {
	mock.Mock
}

func (m *MockSettingsInvalidator) InvalidateSettings(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockLocker mocks the Locker interface
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockLocker) Release(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

// MockNotifier mocks the notify.Notifier interface
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error {
	args := m.Called(ctx, userID, title, body, data)
	return args.Error(0)
}

// MockProvider mocks the llm.Provider interface
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) AvailableModels() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockProvider) DefaultModel() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) IsConfigured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockProvider) Chat(ctx context.Context, req llm.Request, model string) (*llm.Response, error) {
	args := m.Called(ctx, req, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}
