package llm

import "context"

// Roles in a chat transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn handed to a provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains chat generation parameters. Messages arrive fully
// assembled: system prompt first, then history oldest to newest.
type Request struct {
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// Response contains an LLM generation result
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Chat generates the next assistant turn for a transcript. Failures
	// are returned as *Error so callers can decide whether to retry.
	Chat(ctx context.Context, req Request, model string) (*Response, error)
}
