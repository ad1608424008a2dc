// Package ws is the realtime session gateway: one websocket per client,
// conversations as fan-out groups, and a single typed envelope for
// everything the server pushes.
package ws

import (
	"github.com/google/uuid"

	"github.com/mvailland/cyrano/internal/domain"
)

// Outbound event types.
const (
	EventChatHistory   = "chat_history"
	EventNewMessage    = "new_message"
	EventMessageUpdate = "message_update"
	EventError         = "error"
)

// Close codes distinguishing why the server hung up after accepting the
// connection.
const (
	CloseUnauthorized   = 4401
	CloseUnknownSession = 4404
)

// Envelope is the only frame shape the server sends.
type Envelope struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Payload        interface{} `json:"payload"`
}

// ErrorPayload tells the client what went wrong in a form it can match on.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InboundFrame is one client frame: a chat turn, optionally addressed to
// an existing conversation and target.
type InboundFrame struct {
	Message        string     `json:"message"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	TargetID       *uuid.UUID `json:"target_id,omitempty"`
	Tone           string     `json:"tone,omitempty"`
}

// HistoryEvent wraps a conversation replay. A nil history marshals as an
// empty list, never null.
func HistoryEvent(conversationID uuid.UUID, messages []domain.Message) Envelope {
	if messages == nil {
		messages = []domain.Message{}
	}
	return Envelope{
		Type:           EventChatHistory,
		ConversationID: conversationID.String(),
		Payload:        messages,
	}
}

// MessageEvent wraps a single message under the given event type.
func MessageEvent(eventType string, conversationID uuid.UUID, msg *domain.Message) Envelope {
	return Envelope{
		Type:           eventType,
		ConversationID: conversationID.String(),
		Payload:        msg,
	}
}

// ErrorEvent wraps a rejection. conversationID may be empty when the
// failure predates session resolution.
func ErrorEvent(conversationID, code, message string) Envelope {
	return Envelope{
		Type:           EventError,
		ConversationID: conversationID,
		Payload:        ErrorPayload{Code: code, Message: message},
	}
}
