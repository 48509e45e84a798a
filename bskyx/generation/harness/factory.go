package harness

import (
	"context"

	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/config"
	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/tools"
	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/models"
	"github.com/rs/zerolog"
)

// Factory creates and wires harness components from configuration.
// Cache, limiter and tracer are created once and shared by every provider and agent it builds.
type Factory struct {
	cfg     *config.Config
	logger  zerolog.Logger
	cache   ports.Cache
	limiter ports.RateLimiter
	tracer  ports.Tracer
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, logger zerolog.Logger) *Factory {
	f := &Factory{cfg: cfg, logger: logger}
	f.cache = f.createCache()
	f.limiter = f.createRateLimiter()
	f.tracer = f.createTracer()
	return f
}

// Tracer returns the shared tracer.
func (f *Factory) Tracer() ports.Tracer { return f.tracer }

// CreateProvider builds the chat-completions provider for model, wrapped with the
// configured rate limiter and completion cache.
func (f *Factory) CreateProvider(model string) ports.Provider {
	var provider ports.Provider = models.NewOpenAIProvider(models.ProviderConfig{
		BaseURL:      f.cfg.LLM.BaseURL,
		APIKey:       f.cfg.LLM.APIKey,
		Model:        model,
		Timeout:      f.cfg.LLM.Timeout,
		MaxNewTokens: f.cfg.LLM.MaxNewTokens,
		Temperature:  f.cfg.LLM.Temperature,
	}, f.logger)
	return f.WrapProvider(provider, model)
}

// WrapProvider applies the rate limiter, then the cache, so cache hits never wait for a permit.
func (f *Factory) WrapProvider(provider ports.Provider, namespace string) ports.Provider {
	if f.cfg.Harness.RateLimitEnabled {
		provider = adapters.NewLimitedProvider(provider, f.limiter, namespace)
	}
	if f.cfg.Harness.CacheEnabled {
		provider = adapters.NewCachingProvider(provider, f.cache, f.tracer, namespace, f.cfg.Harness.CacheTTLSeconds)
	}
	return provider
}

// CreateTools builds the built-in tools.
func (f *Factory) CreateTools() []ports.Tool {
	httpCfg := tools.HTTPConfig{Timeout: f.cfg.Tools.HTTPTimeout, UserAgent: f.cfg.Tools.UserAgent}
	visionModel := f.cfg.Tools.VisionModel
	return []ports.Tool{
		tools.NewSearchTool(tools.SearchConfig{
			HTTPConfig: httpCfg,
			BaseURL:    f.cfg.Tools.SearchBaseURL,
			MaxResults: f.cfg.Tools.SearchMaxResults,
		}),
		tools.NewVisionTool(func() (ports.Provider, error) {
			return f.CreateProvider(visionModel), nil
		}, f.cfg.Tools.VisionMaxTokens),
		tools.NewBlueskyFetchTool(tools.BlueskyConfig{
			HTTPConfig: httpCfg,
			APIHost:    f.cfg.Tools.BlueskyAPIHost,
		}),
	}
}

// CreateRegistry registers the given tools, or the built-in ones when none are given,
// and applies the allowed_tools list.
func (f *Factory) CreateRegistry(extra ...ports.Tool) (*Registry, error) {
	toolset := extra
	if len(toolset) == 0 {
		toolset = f.CreateTools()
	}
	registry, err := NewRegistry(toolset...)
	if err != nil {
		return nil, err
	}
	return registry.Restrict(f.cfg.Harness.AllowedTools)
}

// CreateGuardrails returns nil when guardrails are disabled.
func (f *Factory) CreateGuardrails() *Guardrails {
	if !f.cfg.Harness.EnableGuardrails {
		return nil
	}
	return NewGuardrails()
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	policy := &Policy{
		MaxSteps:        f.cfg.Agent.MaxSteps,
		NativeTools:     f.cfg.Agent.NativeTools,
		ObservationLogs: f.cfg.Agent.ObservationLogs,
		Options: ports.Options{
			MaxNewTokens: f.cfg.LLM.MaxNewTokens,
			Temperature:  f.cfg.LLM.Temperature,
		},
	}

	if policy.MaxSteps < 1 {
		policy.MaxSteps = 1
		f.logger.Warn().Int("max_steps", f.cfg.Agent.MaxSteps).Msg("MaxSteps clamped to minimum of 1")
	}
	if policy.MaxSteps > 50 {
		policy.MaxSteps = 50
		f.logger.Warn().Int("max_steps", f.cfg.Agent.MaxSteps).Msg("MaxSteps clamped to maximum of 50")
	}

	return policy
}

// CreateAgent wires an agent for model around registry. metrics may be nil.
func (f *Factory) CreateAgent(model string, registry *Registry, metrics *MetricsCollector) *Agent {
	return f.CreateAgentWithProvider(f.CreateProvider(model), registry, metrics)
}

// CreateAgentWithProvider wires an agent around an already built provider.
func (f *Factory) CreateAgentWithProvider(provider ports.Provider, registry *Registry, metrics *MetricsCollector) *Agent {
	return NewAgent(provider, registry, NewPromptBuilder(), NewActionParser(), f.tracer, f.CreatePolicy()).
		WithGuardrails(f.CreateGuardrails()).
		WithMetrics(metrics).
		WithLogger(f.logger)
}

func (f *Factory) createCache() ports.Cache {
	if !f.cfg.Harness.CacheEnabled {
		return &noOpCache{}
	}
	return adapters.NewLRUCache(f.cfg.Harness.CacheCapacity)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewRateLimiter(f.cfg.Harness.RateLimitRPS, f.cfg.Harness.RateLimitBurst)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache       = (*noOpCache)(nil)
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = (*noOpTracer)(nil)
)
