package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mvailland/cyrano/internal/llm"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"rate limit", llm.NewError(llm.ErrorTypeRateLimit, "openai", "slow down"), true},
		{"transient", llm.NewErrorWithStatus(llm.ErrorTypeTransient, "openai", 503, "overloaded"), true},
		{"empty response", llm.NewError(llm.ErrorTypeEmptyResponse, "gemini", "no content"), true},
		{"auth", llm.NewErrorWithStatus(llm.ErrorTypeAuth, "openai", 401, "bad key"), false},
		{"bad prompt", llm.NewErrorWithStatus(llm.ErrorTypeBadPrompt, "openai", 400, "rejected"), false},
		{"untagged", errors.New("something broke"), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := llm.IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected llm.ErrorType
	}{
		{429, llm.ErrorTypeRateLimit},
		{401, llm.ErrorTypeAuth},
		{403, llm.ErrorTypeAuth},
		{408, llm.ErrorTypeTransient},
		{500, llm.ErrorTypeTransient},
		{503, llm.ErrorTypeTransient},
		{400, llm.ErrorTypeBadPrompt},
		{422, llm.ErrorTypeBadPrompt},
		{200, llm.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		if got := llm.ClassifyStatus(tt.status); got != tt.expected {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.expected)
		}
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := llm.NewRetryPolicy(llm.RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      300 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        false,
	})

	if got := p.Delay(1); got != 0 {
		t.Errorf("first attempt should be immediate, got %v", got)
	}
	if got := p.Delay(2); got != 100*time.Millisecond {
		t.Errorf("Delay(2) = %v, want 100ms", got)
	}
	if got := p.Delay(3); got != 200*time.Millisecond {
		t.Errorf("Delay(3) = %v, want 200ms", got)
	}
	if got := p.Delay(5); got != 300*time.Millisecond {
		t.Errorf("Delay(5) = %v, want the 300ms ceiling", got)
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	fastRetry := func(attempts int) *llm.RetryPolicy {
		return llm.NewRetryPolicy(llm.RetryConfig{
			MaxAttempts:   attempts,
			InitialDelay:  time.Millisecond,
			MaxDelay:      2 * time.Millisecond,
			BackoffFactor: 2.0,
		})
	}

	t.Run("first success returns immediately", func(t *testing.T) {
		calls := 0
		resp, err := fastRetry(3).Do(context.Background(), func(context.Context) (*llm.Response, error) {
			calls++
			return &llm.Response{Content: "hi"}, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 || resp.Content != "hi" {
			t.Errorf("calls = %d, resp = %+v", calls, resp)
		}
	})

	t.Run("transient failures retry then succeed", func(t *testing.T) {
		calls := 0
		resp, err := fastRetry(3).Do(context.Background(), func(context.Context) (*llm.Response, error) {
			calls++
			if calls < 3 {
				return nil, llm.NewErrorWithStatus(llm.ErrorTypeTransient, "mock", 503, "overloaded")
			}
			return &llm.Response{Content: "finally"}, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 || resp.Content != "finally" {
			t.Errorf("calls = %d, resp = %+v", calls, resp)
		}
	})

	t.Run("non-retryable errors stop at once", func(t *testing.T) {
		calls := 0
		_, err := fastRetry(3).Do(context.Background(), func(context.Context) (*llm.Response, error) {
			calls++
			return nil, llm.NewErrorWithStatus(llm.ErrorTypeBadPrompt, "mock", 400, "rejected")
		})
		if err == nil {
			t.Fatal("expected an error")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("exhaustion wraps the last error", func(t *testing.T) {
		calls := 0
		_, err := fastRetry(2).Do(context.Background(), func(context.Context) (*llm.Response, error) {
			calls++
			return nil, llm.NewError(llm.ErrorTypeRateLimit, "mock", "slow down")
		})
		if err == nil {
			t.Fatal("expected an error")
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
		if !strings.Contains(err.Error(), "2 attempts failed") {
			t.Errorf("error should report the attempt count, got %v", err)
		}
	})

	t.Run("cancellation cuts the backoff short", func(t *testing.T) {
		p := llm.NewRetryPolicy(llm.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Second,
			MaxDelay:      time.Second,
			BackoffFactor: 2.0,
		})
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)

		start := time.Now()
		_, err := p.Do(ctx, func(context.Context) (*llm.Response, error) {
			return nil, llm.NewErrorWithStatus(llm.ErrorTypeTransient, "mock", 503, "overloaded")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("cancellation should not wait out the backoff, took %v", elapsed)
		}
	})
}

func TestErrorMessage(t *testing.T) {
	err := llm.NewErrorWithStatus(llm.ErrorTypeRateLimit, "openai", 429, "quota exceeded")
	if !strings.Contains(err.Error(), "openai") || !strings.Contains(err.Error(), "rate_limit") {
		t.Errorf("error message should name the provider and type, got %q", err.Error())
	}

	wrapped := llm.WrapError(llm.ErrorTypeTransient, "gemini", errors.New("connection reset"))
	if !strings.Contains(wrapped.Error(), "connection reset") {
		t.Errorf("wrapped cause should surface, got %q", wrapped.Error())
	}
	if llm.TypeOf(wrapped) != llm.ErrorTypeTransient {
		t.Error("TypeOf should see through the wrapper")
	}
}
