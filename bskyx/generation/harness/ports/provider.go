package harnessports

import (
	"context"
)

// Roles used in a transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role      string   // "system", "user", "assistant"
	Content   string   // text payload
	ImageURLs []string // images attached to a user turn (vision requests)
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // prepended as a system message when non-empty
	Messages []PromptMessage   // ordered chat history
	Tools    []ToolSpec        // tool declarations, sent only in native tool mode
	Meta     map[string]string // lightweight metadata for tracing/caching keys
}

// Options controls sampling, limits, and tool preferences.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	// Stop ends generation at the first occurrence of any sequence.
	Stop []string
	// ToolChoice: "auto" | "none" | specific tool name (if the provider supports it)
	ToolChoice string
	// JSONMode asks the backend for a single JSON object.
	JSONMode bool
	// TimeoutMs applies to the provider call only (not the overall run)
	TimeoutMs int
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Model     string // model that served the request
	Raw       any    // raw provider payload for debugging/telemetry
	Usage     *Usage // optional usage information
}

// Provider is the abstraction for all LLM backends.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, in PromptInput, opts Options) (Completion, error)

func (f ProviderFunc) Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error) {
	return f(ctx, in, opts)
}
