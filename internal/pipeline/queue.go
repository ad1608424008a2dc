// Package pipeline runs the side-effect jobs spawned by completed chat
// cycles: title synthesis, event detection, profile enrichment, style
// refresh and the reminder sweep. Jobs are best-effort with bounded
// at-least-once redelivery; nothing here ever touches message state.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/config"
	"github.com/mvailland/cyrano/internal/metrics"
)

// Handler executes one job. A returned error schedules a redelivery until
// the delivery ceiling is hit.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// Queue is an in-process work queue: a buffered channel drained by a fixed
// worker pool. Enqueue never blocks; a full queue drops the job, because
// every job here is a nicety and the reply path must never wait on one.
type Queue struct {
	jobs     chan Job
	handler  Handler
	recorder *metrics.Recorder
	cfg      config.PipelineConfig
	wg       sync.WaitGroup
}

// NewQueue creates a new job queue
func NewQueue(handler Handler, recorder *metrics.Recorder, cfg config.PipelineConfig) *Queue {
	return &Queue{
		jobs:     make(chan Job, cfg.QueueSize),
		handler:  handler,
		recorder: recorder,
		cfg:      cfg,
	}
}

// Enqueue offers a job to the pool and reports whether it was accepted.
func (q *Queue) Enqueue(job Job) bool {
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	select {
	case q.jobs <- job:
		return true
	default:
		q.recorder.ObserveJob(string(job.Kind), "dropped", 0)
		return false
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers have drained their current job.
func (q *Queue) Run(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.wg.Wait()
	log.Info().Msg("Pipeline workers stopped")
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job) {
	start := time.Now()
	err := q.handler.Handle(ctx, job)
	elapsed := time.Since(start)

	if err == nil {
		q.recorder.ObserveJob(string(job.Kind), "completed", elapsed)
		return
	}

	if job.Attempt >= q.cfg.MaxDeliveries {
		q.recorder.ObserveJob(string(job.Kind), "exhausted", elapsed)
		log.Error().Err(err).
			Str("kind", string(job.Kind)).
			Int("attempt", job.Attempt).
			Str("conversation_id", job.ConversationID.String()).
			Msg("job failed, deliveries exhausted")
		return
	}

	q.recorder.ObserveJob(string(job.Kind), "retried", elapsed)
	log.Warn().Err(err).
		Str("kind", string(job.Kind)).
		Int("attempt", job.Attempt).
		Msg("job failed, scheduling redelivery")

	job.Attempt++
	time.AfterFunc(q.cfg.RetryDelay, func() {
		if !q.Enqueue(job) {
			log.Warn().
				Str("kind", string(job.Kind)).
				Msg("queue full, dropping redelivery")
		}
	})
}
