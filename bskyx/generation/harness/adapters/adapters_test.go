package adapters

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2)

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 60))
	value, ok := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), value)

	require.NoError(t, cache.Delete(ctx, "a"))
	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2)

	cache.Set(ctx, "a", []byte("1"), 0)
	cache.Set(ctx, "b", []byte("2"), 0)
	cache.Get(ctx, "a") // a is now most recent
	cache.Set(ctx, "c", []byte("3"), 0)

	_, ok := cache.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestLRUCache_ExpiresEntries(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(4)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set(ctx, "k", []byte("v"), 10)
	now = now.Add(11 * time.Second)

	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestRateLimiter_WaitsAndFailsOnCancelledContext(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)

	release, err := limiter.Acquire(context.Background(), "gpt-4o")
	require.NoError(t, err)
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limiter.Acquire(ctx, "gpt-4o")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// other keys have their own bucket
	_, err = limiter.Acquire(context.Background(), "gpt-4o-mini")
	assert.NoError(t, err)
}

func TestRateLimiter_NonPositiveRateIsUnlimited(t *testing.T) {
	limiter := NewRateLimiter(0, 1)
	for i := 0; i < 50; i++ {
		_, err := limiter.Acquire(context.Background(), "k")
		require.NoError(t, err)
	}
}

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p.calls++
	if p.err != nil {
		return ports.Completion{}, p.err
	}
	return ports.Completion{Text: "Final Answer: ok", Model: "stub", Usage: &ports.Usage{TotalTokens: 3}}, nil
}

func TestCachingProvider_ServesIdenticalRequestsFromCache(t *testing.T) {
	inner := &countingProvider{}
	provider := NewCachingProvider(inner, NewLRUCache(8), nil, "gpt-4o", 60)
	in := ports.PromptInput{Messages: []ports.PromptMessage{{Role: ports.RoleUser, Content: "hi"}}}
	opts := ports.Options{Stop: []string{"Observation:"}}

	first, err := provider.Complete(context.Background(), in, opts)
	require.NoError(t, err)
	second, err := provider.Complete(context.Background(), in, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 3, second.Usage.TotalTokens)

	in.Messages[0].Content = "different"
	_, err = provider.Complete(context.Background(), in, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingProvider_DoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{err: errors.New("boom")}
	provider := NewCachingProvider(inner, NewLRUCache(8), nil, "gpt-4o", 60)

	_, err := provider.Complete(context.Background(), ports.PromptInput{}, ports.Options{})
	assert.Error(t, err)
	_, err = provider.Complete(context.Background(), ports.PromptInput{}, ports.Options{})
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestLimitedProvider_PropagatesLimiterError(t *testing.T) {
	inner := &countingProvider{}
	provider := NewLimitedProvider(inner, NewRateLimiter(0.001, 1), "agent")

	_, err := provider.Complete(context.Background(), ports.PromptInput{}, ports.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = provider.Complete(ctx, ports.PromptInput{}, ports.Options{})
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 1, inner.calls)
}

func TestZerologTracer_WritesSpansAndEvents(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	ctx, finish := tracer.StartSpan(context.Background(), ports.SpanAgentRun, map[string]any{"run_id": "r1"})
	tracer.Event(ctx, ports.EventObservation, map[string]any{"step": 1})
	finish(nil)

	out := buf.String()
	assert.Contains(t, out, `"span":"agent_run"`)
	assert.Contains(t, out, `"run_id":"r1"`)
	assert.Contains(t, out, `"event":"observation"`)
	assert.Contains(t, out, `"event":"span_end"`)

	buf.Reset()
	tracer.Event(context.Background(), ports.EventCacheHit, map[string]any{"key": "k"})
	assert.Contains(t, buf.String(), `"event":"cache_hit"`)
	assert.NotContains(t, buf.String(), `"span"`)
}
