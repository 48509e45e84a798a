package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

// CachingProvider memoizes completions of an inner provider keyed by the full request.
type CachingProvider struct {
	inner     ports.Provider
	cache     ports.Cache
	tracer    ports.Tracer
	namespace string
	ttl       int
}

// NewCachingProvider wraps inner. namespace separates entries of different models sharing a cache.
func NewCachingProvider(inner ports.Provider, cache ports.Cache, tracer ports.Tracer, namespace string, ttlSeconds int) *CachingProvider {
	return &CachingProvider{
		inner:     inner,
		cache:     cache,
		tracer:    tracer,
		namespace: namespace,
		ttl:       ttlSeconds,
	}
}

type cachedCompletion struct {
	Text      string           `json:"text"`
	ToolCalls []ports.ToolCall `json:"tool_calls,omitempty"`
	Model     string           `json:"model,omitempty"`
	Usage     *ports.Usage     `json:"usage,omitempty"`
}

// Complete returns the cached completion for an identical request or calls through.
func (p *CachingProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	key, err := p.cacheKey(in, opts)
	if err != nil {
		return p.inner.Complete(ctx, in, opts)
	}

	if raw, ok := p.cache.Get(ctx, key); ok {
		var cached cachedCompletion
		if err := json.Unmarshal(raw, &cached); err == nil {
			if p.tracer != nil {
				p.tracer.Event(ctx, ports.EventCacheHit, map[string]any{"namespace": p.namespace})
			}
			return ports.Completion{
				Text:      cached.Text,
				ToolCalls: cached.ToolCalls,
				Model:     cached.Model,
				Usage:     cached.Usage,
			}, nil
		}
		_ = p.cache.Delete(ctx, key)
	}

	completion, err := p.inner.Complete(ctx, in, opts)
	if err != nil {
		return completion, err
	}

	if raw, err := json.Marshal(cachedCompletion{
		Text:      completion.Text,
		ToolCalls: completion.ToolCalls,
		Model:     completion.Model,
		Usage:     completion.Usage,
	}); err == nil {
		_ = p.cache.Set(ctx, key, raw, p.ttl)
	}

	return completion, nil
}

func (p *CachingProvider) cacheKey(in ports.PromptInput, opts ports.Options) (string, error) {
	payload, err := json.Marshal(struct {
		Namespace string
		System    string
		Messages  []ports.PromptMessage
		Tools     []ports.ToolSpec
		Options   ports.Options
	}{p.namespace, in.System, in.Messages, in.Tools, opts})
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// LimitedProvider acquires a rate-limit permit before every call to the inner provider.
type LimitedProvider struct {
	inner   ports.Provider
	limiter ports.RateLimiter
	key     string
}

// NewLimitedProvider wraps inner; calls sharing key share a bucket.
func NewLimitedProvider(inner ports.Provider, limiter ports.RateLimiter, key string) *LimitedProvider {
	return &LimitedProvider{inner: inner, limiter: limiter, key: key}
}

// Complete waits for a permit and calls through.
func (p *LimitedProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	release, err := p.limiter.Acquire(ctx, p.key)
	if err != nil {
		return ports.Completion{}, err
	}
	defer release()

	return p.inner.Complete(ctx, in, opts)
}

var (
	_ ports.Provider = (*CachingProvider)(nil)
	_ ports.Provider = (*LimitedProvider)(nil)
)
