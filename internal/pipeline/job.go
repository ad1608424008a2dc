package pipeline

import "github.com/google/uuid"

// Kind names a side-effect job type.
type Kind string

const (
	// KindTitle generates a session title from the opening message.
	KindTitle Kind = "title"
	// KindEvents extracts a calendar event hinted at by the message.
	KindEvents Kind = "events"
	// KindEnrich merges new facts into the bound target profile.
	KindEnrich Kind = "enrich"
	// KindStyle refreshes the user's writing style fingerprint.
	KindStyle Kind = "style"
)

// Job is one unit of deferred work spawned after a completed generation
// cycle. Jobs are best-effort: they carry everything a handler needs so a
// redelivery never has to re-derive state from the trigger.
type Job struct {
	Kind           Kind
	Attempt        int
	SessionID      uuid.UUID
	UserID         uuid.UUID
	ConversationID uuid.UUID
	TargetID       *uuid.UUID
	Text           string
}
