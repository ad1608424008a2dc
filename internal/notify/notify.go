// Package notify delivers out-of-band notifications to users.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notifier pushes a notification to all of a user's devices. Delivery is
// fire-and-forget; failures are logged by callers, never propagated.
type Notifier interface {
	Send(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error
}

// LogNotifier writes notifications to the application log. It stands in
// until a push transport is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error {
	log.Info().
		Str("user_id", userID.String()).
		Str("title", title).
		Str("body", body).
		Msg("Notification sent")
	return nil
}
