package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultPersona is used when the user has no persona configured.
const DefaultPersona = "You are a helpful Wingman AI dating coach."

const (
	titleSystemPrompt = "Generate a concise 3-4 word title for this chat. No quotes."
	titleMaxTokens    = 20
	titleInputLimit   = 500
)

// PromptInputs carries the personalization that goes into the system
// prompt: persona, tones, language, the user's style fingerprint and what
// we know about the person they are texting.
type PromptInputs struct {
	Persona        string
	Tones          []string
	Language       string
	Style          string
	TargetName     string
	TargetLikes    string
	TargetDetails  string
	TargetMentions string
	TargetFacts    []string
}

// BuildSystemPrompt assembles the instruction unit that leads every
// transcript.
func BuildSystemPrompt(in PromptInputs) string {
	var b strings.Builder

	persona := in.Persona
	if persona == "" {
		persona = DefaultPersona
	}
	b.WriteString(persona)

	if len(in.Tones) > 0 {
		fmt.Fprintf(&b, "\nRespond using these tones: %s.", strings.Join(in.Tones, ", "))
	} else {
		b.WriteString("\nKeep the tone confident and helpful.")
	}
	if in.Language != "" {
		fmt.Fprintf(&b, "\nRespond in %s.", in.Language)
	}
	if in.Style != "" {
		fmt.Fprintf(&b, "\nThe user's writing style: %s. Suggest replies that sound like them.", in.Style)
	}

	if in.TargetName != "" {
		fmt.Fprintf(&b, "\nThe user is talking to %s.", in.TargetName)
		if in.TargetLikes != "" {
			fmt.Fprintf(&b, "\nWhat they like: %s", in.TargetLikes)
		}
		if in.TargetDetails != "" {
			fmt.Fprintf(&b, "\nDetails: %s", in.TargetDetails)
		}
		if in.TargetMentions != "" {
			fmt.Fprintf(&b, "\nThings they brought up: %s", in.TargetMentions)
		}
		if len(in.TargetFacts) > 0 {
			fmt.Fprintf(&b, "\nKnown facts: %s", strings.Join(in.TargetFacts, "; "))
		}
	}

	b.WriteString("\nYour goal is to help the user. Keep it short and engaging.")
	return b.String()
}

// PromptBuilder assembles the transcript sent to a provider, fitting as
// much recent history as the token budget allows.
type PromptBuilder struct {
	estimator *TokenEstimator
	budget    int
}

// NewPromptBuilder creates a prompt builder with a total token budget.
func NewPromptBuilder(estimator *TokenEstimator, budget int) *PromptBuilder {
	return &PromptBuilder{estimator: estimator, budget: budget}
}

// Build produces the provider transcript. history must be ordered newest
// first; the result is the system prompt followed by the kept turns oldest
// first. The newest turn is always kept, even when it alone exceeds the
// budget, so the user's message is never silently dropped.
func (b *PromptBuilder) Build(in PromptInputs, history []ChatMessage) []ChatMessage {
	system := ChatMessage{Role: RoleSystem, Content: BuildSystemPrompt(in)}
	remaining := b.budget - b.estimator.EstimateMessage(system)

	var kept []ChatMessage
	for i, m := range history {
		cost := b.estimator.EstimateMessage(m)
		if i > 0 && cost > remaining {
			break
		}
		kept = append(kept, m)
		remaining -= cost
	}

	out := make([]ChatMessage, 0, len(kept)+1)
	out = append(out, system)
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i])
	}
	return out
}

// AnnotateImage appends OCR text from an attached image to a turn, so the
// model sees what the screenshot said.
func AnnotateImage(content, extracted string) string {
	if extracted == "" {
		return content
	}
	return content + "\n[IMAGE CONTEXT: " + extracted + "]"
}

// AnnotateVoice appends a transcription that arrived after the turn was
// sent.
func AnnotateVoice(content, transcript string) string {
	if transcript == "" {
		return content
	}
	return content + "\n[VOICE NOTE: " + transcript + "]"
}

// BuildTitleRequest creates the request for session title synthesis from
// the first user message.
func BuildTitleRequest(firstMessage string) Request {
	msg := firstMessage
	if len(msg) > titleInputLimit {
		msg = msg[:titleInputLimit]
	}
	return Request{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: titleSystemPrompt},
			{Role: RoleUser, Content: msg},
		},
		MaxTokens: titleMaxTokens,
	}
}

// CleanTitle normalizes a generated title. Empty results fall back to the
// given default.
func CleanTitle(raw, fallback string) string {
	t := strings.TrimSpace(raw)
	t = strings.Trim(t, `"'`)
	t = strings.TrimSpace(t)
	if t == "" {
		return fallback
	}
	return t
}

// temporalCues gates calendar extraction so the model is only consulted
// when a message plausibly mentions a plan.
var temporalCues = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|weekend|next week|at \d{1,2}(:\d{2})?\s?(am|pm)?|\d{1,2}(:\d{2})\s?(am|pm)?|\d{1,2}[/.]\d{1,2})\b`)

// HasTemporalCue reports whether text mentions a time or date.
func HasTemporalCue(text string) bool {
	return temporalCues.MatchString(text)
}

// EventDraft is the structured result of calendar intent extraction.
type EventDraft struct {
	Found       bool   `json:"found"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
}

// ParsedStart parses the draft's start time as RFC3339.
func (d *EventDraft) ParsedStart() (time.Time, error) {
	return time.Parse(time.RFC3339, d.StartTime)
}

// BuildEventRequest asks the model to extract a concrete plan from a
// message as strict JSON.
func BuildEventRequest(message string, now time.Time) Request {
	system := fmt.Sprintf(`You extract calendar plans from chat messages. The current time is %s.
Reply with JSON only: {"found": true, "title": "...", "description": "...", "start_time": "RFC3339 timestamp"}.
If the message contains no concrete plan with a date or time, reply {"found": false}.`, now.Format(time.RFC3339))
	return Request{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: message},
		},
		MaxTokens: 200,
	}
}

// ParseEventDraft decodes an extraction reply, tolerating code fences.
func ParseEventDraft(raw string) (*EventDraft, error) {
	var d EventDraft
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &d); err != nil {
		return nil, fmt.Errorf("failed to parse event draft: %w", err)
	}
	return &d, nil
}

// BuildEnrichmentRequest asks for new facts about the target mentioned in
// recent user messages.
func BuildEnrichmentRequest(targetName string, messages []string) Request {
	system := fmt.Sprintf(`You maintain notes about %s based on what the user says.
Extract new facts about %s from the messages below.
Reply with a JSON array of short fact strings, for example ["likes sushi", "has a dog"].
Reply [] if there is nothing new.`, targetName, targetName)
	return Request{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: strings.Join(messages, "\n")},
		},
		MaxTokens: 300,
	}
}

// ParseFacts decodes an enrichment reply into fact strings.
func ParseFacts(raw string) ([]string, error) {
	var facts []string
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &facts); err != nil {
		return nil, fmt.Errorf("failed to parse facts: %w", err)
	}
	out := facts[:0]
	for _, f := range facts {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

// BuildStyleRequest asks for a compact fingerprint of how the user writes.
func BuildStyleRequest(samples []string) Request {
	system := `Describe this user's writing style in one short sentence: tone, formality, emoji use, typical message length.
Reply with the description only.`
	return Request{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: strings.Join(samples, "\n")},
		},
		MaxTokens: 60,
	}
}

// ExtractJSON strips markdown fences from a model reply, returning the
// inner JSON.
func ExtractJSON(content string) string {
	if block := extractFromCodeBlock(content, "```json", "```"); block != "" {
		return block
	}
	if block := extractFromCodeBlock(content, "```", "```"); block != "" {
		return block
	}
	return strings.TrimSpace(content)
}

func extractFromCodeBlock(content, startMarker, endMarker string) string {
	start := strings.Index(content, startMarker)
	if start == -1 {
		return ""
	}
	rest := content[start+len(startMarker):]
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, endMarker)
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
