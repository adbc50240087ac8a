package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores rendered plot fragments keyed by location, with TTL-based
// expiry. Entries are never invalidated before expiry; a stale-by-one-day
// fragment is acceptable.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, fragment string, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-protected map. Expired entries
// are removed lazily on access; StartJanitor adds a periodic sweep so keys
// that are never read again do not pin their fragments in memory.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

// cacheEntry stores a rendered fragment with its expiration timestamp.
type cacheEntry struct {
	fragment  string
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get returns the cached fragment for key if present and not expired.
// Returns (fragment, true, nil) on hit, ("", false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.data[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}

	return entry.fragment, true, nil
}

// Set stores a fragment with the specified TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, fragment string, ttl time.Duration) error {
	c.mu.Lock()
	c.data[key] = cacheEntry{
		fragment:  fragment,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// StartJanitor sweeps expired entries at the given interval until ctx is done.
func (c *InMemoryCache) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(time.Now())
			}
		}
	}()
}

// sweep removes every entry that expired before now.
func (c *InMemoryCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
