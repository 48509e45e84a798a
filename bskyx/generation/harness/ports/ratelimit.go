package harnessports

import "context"

// RateLimiter coordinates throughput across providers/models.
// Acquire blocks until a permit is available or ctx is done.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
