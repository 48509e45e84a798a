package harness

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/config"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			BaseURL: "http://127.0.0.1:1/v1",
			Model:   "gpt-4o",
			APIKey:  "test-key",
		},
		Agent: config.AgentConfig{MaxSteps: 5, ObservationLogs: 50},
		Tools: config.ToolsConfig{
			SearchBaseURL:    "http://127.0.0.1:1",
			SearchMaxResults: 5,
			VisionModel:      "gpt-4o",
			VisionMaxTokens:  300,
			BlueskyAPIHost:   "http://127.0.0.1:1",
		},
		Harness: config.HarnessConfig{
			CacheCapacity:   16,
			CacheTTLSeconds: 60,
			RateLimitRPS:    100,
			RateLimitBurst:  10,
		},
	}
}

func TestFactory_CreatePolicyClampsSteps(t *testing.T) {
	cfg := testConfig()

	cfg.Agent.MaxSteps = 0
	assert.Equal(t, 1, NewFactory(cfg, zerolog.Nop()).CreatePolicy().MaxSteps)

	cfg.Agent.MaxSteps = 500
	assert.Equal(t, 50, NewFactory(cfg, zerolog.Nop()).CreatePolicy().MaxSteps)

	cfg.Agent.MaxSteps = 3
	cfg.Agent.NativeTools = true
	policy := NewFactory(cfg, zerolog.Nop()).CreatePolicy()
	assert.Equal(t, 3, policy.MaxSteps)
	assert.True(t, policy.NativeTools)
}

func TestFactory_CreateRegistry(t *testing.T) {
	cfg := testConfig()

	registry, err := NewFactory(cfg, zerolog.Nop()).CreateRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "vision", "bluesky_fetch"}, registry.Names())

	cfg.Harness.AllowedTools = []string{"bluesky_fetch", "search"}
	registry, err = NewFactory(cfg, zerolog.Nop()).CreateRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"bluesky_fetch", "search"}, registry.Names())

	cfg.Harness.AllowedTools = []string{"calculator"}
	_, err = NewFactory(cfg, zerolog.Nop()).CreateRegistry()
	assert.Error(t, err)
}

func TestFactory_CreateGuardrails(t *testing.T) {
	cfg := testConfig()
	assert.Nil(t, NewFactory(cfg, zerolog.Nop()).CreateGuardrails())

	cfg.Harness.EnableGuardrails = true
	assert.NotNil(t, NewFactory(cfg, zerolog.Nop()).CreateGuardrails())
}

func TestFactory_DefaultConfigReturnsAnswerVerbatim(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Tools = testConfig().Tools
	factory := NewFactory(cfg, zerolog.Nop())

	want := "* 'hunter2' is an old IRC joke: someone wrote password: hunter2 and others only saw stars (bash.org)\n" +
		"* secret: the joke is that nobody's password is hidden when typed in chat"
	stub := scripted("Thought: I have sufficient information.\nFinal Answer:\n" + want)
	registry, err := factory.CreateRegistry()
	require.NoError(t, err)
	agent := factory.CreateAgentWithProvider(stub, registry, nil)

	answer, err := agent.Explain(context.Background(), "my password is hunter2 lol", "")

	require.NoError(t, err)
	assert.Equal(t, want, answer)
}

func TestFactory_GuardrailsMaskKeysWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Harness.EnableGuardrails = true
	factory := NewFactory(cfg, zerolog.Nop())

	stub := scripted("Final Answer:\n* password: hunter2 is the meme\n* the leaked sk-abcdefghijklmnopqrstuvwxyz is revoked")
	registry, err := factory.CreateRegistry()
	require.NoError(t, err)

	answer, err := factory.CreateAgentWithProvider(stub, registry, nil).Explain(context.Background(), "x", "")

	require.NoError(t, err)
	assert.Equal(t, "* password: hunter2 is the meme\n* the leaked [REDACTED] is revoked", answer)
}

func TestFactory_CachedProviderServesRepeatedRuns(t *testing.T) {
	cfg := testConfig()
	cfg.Harness.CacheEnabled = true
	cfg.Harness.RateLimitEnabled = true
	cfg.Harness.EnableTracing = true
	factory := NewFactory(cfg, zerolog.Nop())

	stub := scripted("Action: search\nAction Input: peak", "Final Answer: cached")
	search, _, _ := defaultTools()
	registry, err := factory.CreateRegistry(search)
	require.NoError(t, err)

	metrics := NewMetricsCollector()
	agent := factory.CreateAgentWithProvider(factory.WrapProvider(stub, "gpt-4o"), registry, metrics)

	first, err := agent.Explain(context.Background(), "lol this is peak", "")
	require.NoError(t, err)
	second, err := agent.Explain(context.Background(), "lol this is peak", "")
	require.NoError(t, err)

	assert.Equal(t, "cached", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, stub.Calls(), "the second run is served from the cache")
	assert.Equal(t, int64(4), metrics.GetSummary().ProviderCalls)
	assert.Len(t, search.args, 2, "tools still run on cached completions")
}
