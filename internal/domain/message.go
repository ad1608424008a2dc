package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageStatus tracks the lifecycle of a message. Transitions only move
// forward: pending -> processing -> completed or failed.
type MessageStatus string

const (
	StatusPending    MessageStatus = "pending"
	StatusProcessing MessageStatus = "processing"
	StatusCompleted  MessageStatus = "completed"
	StatusFailed     MessageStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s MessageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a forward step.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// MediaType tags a message that originated from an attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVoice MediaType = "voice"
)

// Message represents a single turn in a session. Every message starts
// pending; only assistant placeholders are driven further through the
// lifecycle, user turns have no processing of their own.
type Message struct {
	ID            uuid.UUID     `json:"id"`
	SessionID     uuid.UUID     `json:"-"`
	Role          MessageRole   `json:"role"`
	Status        MessageStatus `json:"status"`
	Content       string        `json:"content"`
	MediaURL      *string       `json:"media_url,omitempty"`
	MediaType     *MediaType    `json:"media_type,omitempty"`
	ExtractedText *string       `json:"-"`
	Model         string        `json:"model,omitempty"`
	TokensUsed    int           `json:"tokens_used,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"-"`
}

// MessageRepository defines the interface for message storage. Status
// updates are guarded so a stale writer can never rewind a terminal state.
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	Get(ctx context.Context, id uuid.UUID) (*Message, error)
	// ListRecent returns up to limit messages ordered newest first.
	ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, content string, tokens int, model string) error
	Fail(ctx context.Context, id uuid.UUID, content string) error
	AttachExtractedText(ctx context.Context, id uuid.UUID, text string) error
	ReplaceContent(ctx context.Context, id uuid.UUID, content string) error
	// CountMediaSince counts the user's media messages created at or after
	// since, used to seed the upload counter when Redis has no entry.
	CountMediaSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}
