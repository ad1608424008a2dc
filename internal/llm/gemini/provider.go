package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/mvailland/cyrano/internal/config"
	"github.com/mvailland/cyrano/internal/llm"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) AvailableModels() []string {
	return []string{
		"gemini-2.5-flash",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	}
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) Chat(ctx context.Context, req llm.Request, model string) (*llm.Response, error) {
	if !p.IsConfigured() {
		return nil, llm.NewError(llm.ErrorTypeAuth, p.Name(), "missing API key")
	}

	if model == "" {
		model = p.DefaultModel()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	generativeModel := client.GenerativeModel(model)
	temperature := float32(req.Temperature)
	generativeModel.Temperature = &temperature
	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		generativeModel.MaxOutputTokens = &maxTokens
	}

	// Gemini takes the system prompt out of band and the history through a
	// chat session, with the newest user turn as the send.
	history, last := splitTranscript(req.Messages, generativeModel)

	chat := generativeModel.StartChat()
	chat.History = history

	start := time.Now()
	resp, err := chat.SendMessage(ctx, genai.Text(last))
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return nil, classify(p.Name(), err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, llm.NewError(llm.ErrorTypeEmptyResponse, p.Name(), "no candidates in response")
	}

	var output string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output += string(text)
		}
	}
	if output == "" {
		return nil, llm.NewError(llm.ErrorTypeEmptyResponse, p.Name(), "candidate carried no text")
	}

	tokensUsed := 0
	if resp.UsageMetadata != nil {
		tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &llm.Response{
		Content:    output,
		Model:      model,
		TokensUsed: tokensUsed,
		LatencyMs:  latency,
	}, nil
}

// splitTranscript maps the request onto the genai chat shape: system
// instruction on the model, prior turns as history, the final user turn
// returned for sending.
func splitTranscript(messages []llm.ChatMessage, model *genai.GenerativeModel) ([]*genai.Content, string) {
	var history []*genai.Content
	last := ""

	end := len(messages)
	if end > 0 && messages[end-1].Role == llm.RoleUser {
		last = messages[end-1].Content
		end--
	}

	for _, m := range messages[:end] {
		switch m.Role {
		case llm.RoleSystem:
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(m.Content)},
			}
		case llm.RoleAssistant:
			history = append(history, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(m.Content)},
			})
		default:
			history = append(history, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(m.Content)},
			})
		}
	}
	return history, last
}

func classify(provider string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return llm.NewErrorWithStatus(llm.ClassifyStatus(apiErr.Code), provider, apiErr.Code, apiErr.Message)
	}
	return llm.WrapError(llm.ErrorTypeTransient, provider, err)
}
