package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	return newTestProviderFor(t, "gpt-4o-mini", handler)
}

func newTestProviderFor(t *testing.T, model string, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIProvider(ProviderConfig{
		BaseURL: server.URL + "/v1/",
		APIKey:  "sk-test",
		Model:   model,
	}, zerolog.Nop())
}

func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var body map[string]any
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body = decodeRequest(t, r)
		fmt.Fprint(w, `{"id":"c1","model":"gpt-4o-mini-2024-07-18","choices":[{"message":{"role":"assistant","content":"Thought: x\nAction: search\nAction Input: peak"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":8,"total_tokens":20}}`)
	})

	completion, err := provider.Complete(context.Background(), ports.PromptInput{
		Messages: []ports.PromptMessage{
			{Role: ports.RoleSystem, Content: "sys"},
			{Role: ports.RoleUser, Content: "task"},
		},
	}, ports.Options{Stop: []string{"Observation:"}, MaxNewTokens: 64})

	require.NoError(t, err)
	assert.Equal(t, "Thought: x\nAction: search\nAction Input: peak", completion.Text)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", completion.Model)
	require.NotNil(t, completion.Usage)
	assert.Equal(t, 20, completion.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, []any{"Observation:"}, body["stop"])
	assert.Equal(t, float64(64), body["max_tokens"])
	assert.Equal(t, float64(0), body["temperature"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, map[string]any{"role": "system", "content": "sys"}, messages[0])
	assert.NotContains(t, body, "response_format")
	assert.NotContains(t, body, "tools")
}

func TestOpenAIProvider_JSONModeSystemAndImages(t *testing.T) {
	var body map[string]any
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body = decodeRequest(t, r)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{}"}}]}`)
	})

	_, err := provider.Complete(context.Background(), ports.PromptInput{
		System: "You are an evaluation judge.",
		Messages: []ports.PromptMessage{
			{Role: ports.RoleUser, Content: "describe", ImageURLs: []string{"https://cdn.example/a.jpg"}},
		},
	}, ports.Options{JSONMode: true})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "You are an evaluation judge.", messages[0].(map[string]any)["content"])
	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, map[string]any{"type": "text", "text": "describe"}, parts[0])
	assert.Equal(t, map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://cdn.example/a.jpg"}}, parts[1])
}

func TestOpenAIProvider_NativeToolCalls(t *testing.T) {
	var body map[string]any
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body = decodeRequest(t, r)
		fmt.Fprint(w, `{"choices":[{"message":{"content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"bluesky_fetch","arguments":"{\"url\":\"https://bsky.app/profile/a/post/b\"}"}},
			{"id":"call_2","type":"function","function":{"name":"vision","arguments":""}}]},"finish_reason":"tool_calls"}]}`)
	})

	completion, err := provider.Complete(context.Background(), ports.PromptInput{
		Messages: []ports.PromptMessage{{Role: ports.RoleUser, Content: "task"}},
		Tools: []ports.ToolSpec{{
			Name:        "bluesky_fetch",
			Description: "fetch",
			JSONSchema:  []byte(`{"type":"object","properties":{"url":{"type":"string"}}}`),
		}},
	}, ports.Options{ToolChoice: "auto"})
	require.NoError(t, err)

	require.Len(t, completion.ToolCalls, 2)
	assert.Equal(t, "call_1", completion.ToolCalls[0].ID)
	assert.Equal(t, "bluesky_fetch", completion.ToolCalls[0].Name)
	assert.JSONEq(t, `{"url":"https://bsky.app/profile/a/post/b"}`, string(completion.ToolCalls[0].Args))
	assert.JSONEq(t, `{}`, string(completion.ToolCalls[1].Args))
	assert.Empty(t, completion.Text)

	assert.Equal(t, "auto", body["tool_choice"])
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "bluesky_fetch", fn["name"])
}

func TestOpenAIProvider_Errors(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	})
	_, err := provider.Complete(context.Background(), ports.PromptInput{}, ports.Options{})
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "slow down")

	provider = newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	_, err = provider.Complete(context.Background(), ports.PromptInput{}, ports.Options{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestConfigFor(t *testing.T) {
	assert.Equal(t, "GPT-4o mini", ConfigFor("gpt-4o-mini").Name)
	assert.Equal(t, "GPT-4o", ConfigFor("gpt-4o-2024-08-06").Name)
	assert.True(t, ConfigFor("gpt-4o").SupportsJSONMode)

	unknown := ConfigFor("llama3:8b")
	assert.Equal(t, "llama3:8b", unknown.Name)
	assert.False(t, unknown.SupportsTools)
	assert.Zero(t, unknown.DefaultMaxTokens)
}

func TestOpenAIProvider_CapabilitiesShapeRequest(t *testing.T) {
	input := ports.PromptInput{
		Messages: []ports.PromptMessage{{Role: ports.RoleUser, Content: "task"}},
		Tools:    []ports.ToolSpec{{Name: "search", JSONSchema: []byte(`{"type":"object"}`)}},
	}

	tests := []struct {
		name          string
		model         string
		opts          ports.Options
		wantMaxTokens any
		wantFormat    bool
		wantTools     bool
	}{
		{"known model fills default limit", "gpt-4o", ports.Options{JSONMode: true, ToolChoice: "auto"}, float64(1024), true, true},
		{"request limit wins", "gpt-4o", ports.Options{MaxNewTokens: 32}, float64(32), false, true},
		{"unknown model sends plain chat", "llama3:8b", ports.Options{JSONMode: true, ToolChoice: "auto"}, nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			provider := newTestProviderFor(t, tt.model, func(w http.ResponseWriter, r *http.Request) {
				body = decodeRequest(t, r)
				fmt.Fprint(w, `{"choices":[{"message":{"content":"Final Answer: ok"}}]}`)
			})

			_, err := provider.Complete(context.Background(), input, tt.opts)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMaxTokens, body["max_tokens"])
			_, hasFormat := body["response_format"]
			assert.Equal(t, tt.wantFormat, hasFormat)
			_, hasTools := body["tools"]
			assert.Equal(t, tt.wantTools, hasTools)
			_, hasChoice := body["tool_choice"]
			assert.Equal(t, tt.wantTools && tt.opts.ToolChoice != "", hasChoice)
		})
	}
}
