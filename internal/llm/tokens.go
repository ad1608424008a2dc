package llm

import "github.com/tiktoken-go/tokenizer"

// Per-turn overhead for role and separators in the chat wire format.
const messageOverheadTokens = 4

// TokenEstimator counts tokens for context budget enforcement. It uses
// the GPT-4 BPE tables and falls back to a character heuristic when the
// codec is unavailable, so budgeting degrades instead of failing.
type TokenEstimator struct {
	codec tokenizer.Codec
}

// NewTokenEstimator creates a token estimator
func NewTokenEstimator() *TokenEstimator {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &TokenEstimator{}
	}
	return &TokenEstimator{codec: codec}
}

// Estimate returns the token count for text. The fallback of one token
// per four characters overestimates for most inputs, which errs on the
// safe side of the budget.
func (e *TokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e.codec != nil {
		if count, err := e.codec.Count(text); err == nil {
			return count
		}
	}
	return len(text)/4 + 1
}

// EstimateMessage counts a transcript turn including its framing overhead.
func (e *TokenEstimator) EstimateMessage(m ChatMessage) int {
	return e.Estimate(m.Content) + messageOverheadTokens
}
