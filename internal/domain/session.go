package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTitle is assigned to new sessions until title synthesis runs.
const DefaultSessionTitle = "New Chat"

// Session represents a conversation thread. ConversationID is the opaque
// identifier exposed to clients; the row ID never leaves the backend.
type Session struct {
	ID                 uuid.UUID  `json:"-"`
	ConversationID     uuid.UUID  `json:"conversation_id"`
	UserID             uuid.UUID  `json:"-"`
	TargetID           *uuid.UUID `json:"target_id,omitempty"`
	Title              string     `json:"title"`
	MessageCount       int        `json:"message_count"`
	LastMessagePreview string     `json:"last_message_preview"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SessionDetail is the read model served by the detail endpoint: the
// session plus the bound target profile, if any.
type SessionDetail struct {
	Session
	Target *TargetProfile `json:"target,omitempty"`
}

// SessionRepository defines the interface for session storage.
// Client-addressed reads are always scoped by owner so a guessed
// conversation ID can never cross accounts; GetByID serves internal paths
// that start from a message row.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByConversationID(ctx context.Context, conversationID, userID uuid.UUID) (*Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Session, error)
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error
	// ReplaceDefaultTitle writes the title only while the session still has
	// the default one. Reports whether the write happened.
	ReplaceDefaultTitle(ctx context.Context, id uuid.UUID, title string) (bool, error)
	BindTarget(ctx context.Context, id uuid.UUID, targetID *uuid.UUID) error
	// IncrementStats bumps message_count by delta and replaces the preview,
	// touching updated_at. Called only from the message write path.
	IncrementStats(ctx context.Context, id uuid.UUID, delta int, preview string) error
	// RebuildStats recomputes message_count and last_message_preview from the
	// messages table. Repair operation for drift after partial failures.
	RebuildStats(ctx context.Context, id uuid.UUID) (*Session, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	// DeleteAllByUser removes every session the user owns, returning the
	// conversation IDs that were deleted.
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}
