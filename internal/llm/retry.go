package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines exponential backoff behavior for provider calls.
type RetryConfig struct {
	MaxAttempts   int           // Total attempts, including the first
	InitialDelay  time.Duration // Delay before the second attempt
	MaxDelay      time.Duration // Ceiling for any single delay
	BackoffFactor float64       // Multiplier between attempts
	Jitter        bool          // Randomize delays to avoid thundering herd
}

// DefaultRetryConfig provides defaults sized so a full retry cycle stays
// well inside the generation lock TTL.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      8 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// RetryPolicy encapsulates retry configuration and the retry loop.
type RetryPolicy struct {
	cfg RetryConfig
}

// NewRetryPolicy creates a retry policy, normalizing degenerate config.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2.0
	}
	return &RetryPolicy{cfg: cfg}
}

// Delay computes the backoff before the given 1-based attempt. The first
// attempt is immediate.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.cfg.InitialDelay) * math.Pow(p.cfg.BackoffFactor, float64(attempt-2)))
	if delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}

	if p.cfg.Jitter && delay > 0 {
		// +/- 10% so synchronized clients spread out
		span := int64(delay) / 5
		if span > 0 {
			delay += time.Duration(rand.Int63n(span)) - time.Duration(span/2)
		}
	}

	return delay
}

// Do invokes fn until it succeeds, returns a non-retryable error, or
// exhausts the configured attempts. The context is honored between
// attempts, so a caller timeout cuts the backoff short.
func (p *RetryPolicy) Do(ctx context.Context, fn func(context.Context) (*Response, error)) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", p.cfg.MaxAttempts, lastErr)
}
