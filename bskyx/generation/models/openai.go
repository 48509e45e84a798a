package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
	"github.com/rs/zerolog"
)

// ErrEmptyCompletion is returned when the backend answers without any choice.
var ErrEmptyCompletion = errors.New("completion has no choices")

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chat completion failed with status %d: %s", e.StatusCode, e.Body)
}

// ProviderConfig configures an OpenAI-compatible chat-completions client.
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxNewTokens int     // used when a request does not set its own
	Temperature  float32 // used for every request
}

// OpenAIProvider talks to POST {base}/chat/completions.
type OpenAIProvider struct {
	cfg    ProviderConfig
	model  ModelConfig
	client *http.Client
	logger zerolog.Logger
}

// NewOpenAIProvider creates a provider for one model.
func NewOpenAIProvider(cfg ProviderConfig, logger zerolog.Logger) *OpenAIProvider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model := ConfigFor(cfg.Model)
	return &OpenAIProvider{
		cfg:    cfg,
		model:  model,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "openai_provider").Str("model", cfg.Model).Str("model_family", model.Name).Logger(),
	}
}

// Model returns the model id requests are sent with.
func (p *OpenAIProvider) Model() string { return p.cfg.Model }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Tools          []chatTool      `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *ports.Usage `json:"usage"`
}

// Complete sends one chat-completions request.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	payload, err := json.Marshal(p.buildRequest(in, opts))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	started := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("failed to read response: %w", err)
	}
	p.logger.Debug().Int("status", resp.StatusCode).Dur("latency", time.Since(started)).Msg("chat completion")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ports.Completion{}, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ports.Completion{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return ports.Completion{}, ErrEmptyCompletion
	}

	message := decoded.Choices[0].Message
	completion := ports.Completion{
		Text:  message.Content,
		Model: decoded.Model,
		Raw:   decoded,
		Usage: decoded.Usage,
	}
	for _, call := range message.ToolCalls {
		if strings.TrimSpace(call.Function.Arguments) == "" {
			call.Function.Arguments = "{}"
		}
		completion.ToolCalls = append(completion.ToolCalls, ports.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: json.RawMessage(call.Function.Arguments),
		})
	}
	return completion, nil
}

func (p *OpenAIProvider) buildRequest(in ports.PromptInput, opts ports.Options) chatRequest {
	temperature := p.cfg.Temperature
	if opts.Temperature != 0 {
		temperature = opts.Temperature
	}
	maxTokens := opts.MaxNewTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxNewTokens
	}
	if maxTokens == 0 {
		maxTokens = p.model.DefaultMaxTokens
	}

	req := chatRequest{
		Model:       p.cfg.Model,
		Temperature: &temperature,
		MaxTokens:   maxTokens,
		Stop:        opts.Stop,
	}
	if in.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: ports.RoleSystem, Content: in.System})
	}
	for _, msg := range in.Messages {
		req.Messages = append(req.Messages, toChatMessage(msg))
	}
	if opts.JSONMode {
		if p.model.SupportsJSONMode {
			req.ResponseFormat = &responseFormat{Type: "json_object"}
		} else {
			p.logger.Debug().Msg("model has no JSON mode; relying on the prompt for JSON output")
		}
	}
	if len(in.Tools) > 0 && !p.model.SupportsTools {
		p.logger.Debug().Int("tools", len(in.Tools)).Msg("model has no native tool calling; sending text protocol only")
		return req
	}
	for _, spec := range in.Tools {
		req.Tools = append(req.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  json.RawMessage(spec.JSONSchema),
			},
		})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = opts.ToolChoice
	}
	return req
}

func toChatMessage(msg ports.PromptMessage) chatMessage {
	if len(msg.ImageURLs) == 0 {
		return chatMessage{Role: msg.Role, Content: msg.Content}
	}
	parts := []contentPart{{Type: "text", Text: msg.Content}}
	for _, u := range msg.ImageURLs {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u}})
	}
	return chatMessage{Role: msg.Role, Content: parts}
}

var _ ports.Provider = (*OpenAIProvider)(nil)
