package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RunReminders sweeps for confirmed plans about to start and notifies
// their owners. Blocks until ctx is cancelled.
func (j *Jobs) RunReminders(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.ReminderEvery)
	defer ticker.Stop()
	log.Info().Dur("every", j.cfg.ReminderEvery).Msg("Reminder sweep started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweepReminders(ctx)
		}
	}
}

func (j *Jobs) sweepReminders(ctx context.Context) {
	due, err := j.events.ListDueReminders(ctx, j.now(), j.cfg.ReminderWindow)
	if err != nil {
		log.Error().Err(err).Msg("failed to list due reminders")
		return
	}

	for _, e := range due {
		body := fmt.Sprintf("%s at %s", e.Title, e.StartsAt.Format("3:04 PM"))
		j.push(ctx, e.UserID, "Upcoming plan", body, map[string]string{"event_id": e.ID.String()})

		// Marked regardless of delivery; a reminder fires at most once.
		if err := j.events.MarkReminded(ctx, e.ID); err != nil {
			log.Error().Err(err).Str("event_id", e.ID.String()).Msg("failed to mark event reminded")
		}
	}

	if len(due) > 0 {
		log.Info().Int("count", len(due)).Msg("Reminders dispatched")
	}
}
