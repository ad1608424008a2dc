package llm_test

import (
	"strings"
	"testing"

	"github.com/mvailland/cyrano/internal/llm"
)

func TestTokenEstimator_Estimate(t *testing.T) {
	e := llm.NewTokenEstimator()

	if got := e.Estimate(""); got != 0 {
		t.Errorf("empty text should cost 0 tokens, got %d", got)
	}

	short := e.Estimate("hello")
	long := e.Estimate(strings.Repeat("hello there friend ", 50))
	if short <= 0 {
		t.Errorf("non-empty text should cost at least one token, got %d", short)
	}
	if long <= short {
		t.Errorf("longer text should cost more: short=%d long=%d", short, long)
	}

	// Same input, same count.
	if a, b := e.Estimate("stable input"), e.Estimate("stable input"); a != b {
		t.Errorf("estimates should be deterministic: %d vs %d", a, b)
	}
}

func TestTokenEstimator_EstimateMessage(t *testing.T) {
	e := llm.NewTokenEstimator()
	msg := llm.ChatMessage{Role: llm.RoleUser, Content: "hello"}

	if e.EstimateMessage(msg) <= e.Estimate(msg.Content) {
		t.Error("a message should cost more than its bare content")
	}
}
