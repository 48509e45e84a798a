package adapters

import (
	"context"
	"time"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is a size-bounded completion cache with per-entry TTL.
type LRUCache struct {
	cache *lru.Cache[string, cacheEntry]
	now   func() time.Time
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified capacity.
func NewLRUCache(capacity int) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	// lru.New only errors on non-positive size which we guard above.
	cache, _ := lru.New[string, cacheEntry](capacity)
	return &LRUCache{cache: cache, now: time.Now}
}

// Get retrieves a value from the cache. Expired entries are evicted on read.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value in the cache. A non-positive TTL never expires.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	entry := cacheEntry{value: value}
	if ttlSeconds > 0 {
		entry.expiresAt = c.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	c.cache.Add(key, entry)
	return nil
}

// Delete removes a key from the cache.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.cache.Remove(key)
	return nil
}

// Len reports the number of live and not yet evicted entries.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// Ensure LRUCache implements the Cache interface.
var _ ports.Cache = (*LRUCache)(nil)
