package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when a permit cannot be obtained before the context ends.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimiter hands out permits from one token bucket per key.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewRateLimiter creates a limiter allowing rps sustained requests and burst extra per key.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// Acquire waits for a permit for the given key.
func (l *RateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	if err := l.limiterFor(key).Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimitExceeded, err)
	}
	// Tokens refill with time, there is nothing to hand back.
	return func() {}, nil
}

func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.buckets[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = limiter
	}
	return limiter
}

// Ensure RateLimiter implements the RateLimiter interface.
var _ ports.RateLimiter = (*RateLimiter)(nil)
