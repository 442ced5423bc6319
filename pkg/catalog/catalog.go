// Package catalog implements the model-catalog cache (C8, spec §4.8): a
// keyed (backend mode, auth-header hash) cache of upstream model lists.
// Concurrent misses for the same key await one shared in-flight fetch
// rather than each issuing their own upstream call. Grounded on the
// teacher's pkg/registry/registry.go (a sync.RWMutex-guarded map of
// provider state, global-registry-by-name pattern), combined with
// golang.org/x/sync/singleflight for the exactly-once-fetch contract the
// teacher's registry doesn't itself provide.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchFunc retrieves the current model list from an upstream. It is
// called at most once per cache miss, even under concurrent callers for
// the same key.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Cache is a keyed cache of upstream model-list bodies.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	group   singleflight.Group
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

// Key derives a cache key from a backend mode label and the caller's raw
// auth header. The auth header is always hashed, never stored or used
// verbatim, so a cache key never leaks a token.
func Key(backendMode, authHeader string) string {
	sum := sha256.Sum256([]byte(authHeader))
	return backendMode + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached body for key, fetching via fetch on a miss.
// Concurrent callers racing on the same key share one fetch call and its
// result. A fetch error is never cached: the next caller retries from
// scratch.
func (c *Cache) Get(ctx context.Context, key string, fetch FetchFunc) ([]byte, error) {
	c.mu.RLock()
	if body, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return body, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the singleflight guard: another goroutine may
		// have populated the entry between our RUnlock above and
		// acquiring the singleflight slot.
		c.mu.RLock()
		if body, ok := c.entries[key]; ok {
			c.mu.RUnlock()
			return body, nil
		}
		c.mu.RUnlock()

		body, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = body
		c.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Invalidate drops the cached entry for key, if any, forcing the next Get
// to re-fetch.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
