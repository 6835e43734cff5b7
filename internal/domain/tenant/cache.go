package tenant

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL is the default lifetime of a cached context.
const DefaultTTL = 5 * time.Minute

// DefaultCleanupInterval is how often the background sweep removes dead
// entries. Eviction is otherwise lazy, on next lookup.
const DefaultCleanupInterval = time.Minute

// Resolver resolves a (principal, tenant) pair into a Context.
// Implemented by Loader; defined as an interface so tests can count calls.
type Resolver interface {
	Load(ctx context.Context, principalID, tenantID string) (*Context, error)
}

// cacheEntry pairs an immutable context with its expiry.
// Entries are owned exclusively by the cache; the Context itself may be
// shared read-only with any number of request handlers.
type cacheEntry struct {
	context   *Context
	expiresAt time.Time
}

// ContextCache is an in-memory TTL cache over a Resolver.
// Thread-safe for concurrent access. Concurrent misses for the same key may
// both invoke the resolver; both results are equivalent and the last write
// wins, which is acceptable because the underlying data changes far less
// often than the TTL.
type ContextCache struct {
	resolver Resolver
	ttl      time.Duration
	logger   *slog.Logger

	entries map[string]cacheEntry
	mu      sync.RWMutex

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	// now is swappable for tests.
	now func() time.Time
}

// NewContextCache creates a cache with the default TTL and cleanup interval.
func NewContextCache(resolver Resolver, logger *slog.Logger) *ContextCache {
	return NewContextCacheWithConfig(resolver, DefaultTTL, DefaultCleanupInterval, logger)
}

// NewContextCacheWithConfig creates a cache with a custom TTL and cleanup
// interval.
func NewContextCacheWithConfig(resolver Resolver, ttl, cleanupInterval time.Duration, logger *slog.Logger) *ContextCache {
	return &ContextCache{
		resolver:        resolver,
		ttl:             ttl,
		logger:          logger,
		entries:         make(map[string]cacheEntry),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// cacheKey builds the composite key for a (principal, tenant) pair.
// Principal and tenant IDs are opaque identifiers that never contain '\x00'.
func cacheKey(principalID, tenantID string) string {
	return principalID + "\x00" + tenantID
}

// Resolve returns the cached context for (principal, tenant) while its
// entry is live, invoking the resolver on miss or expiry. Resolution
// failures are not cached.
func (c *ContextCache) Resolve(ctx context.Context, principalID, tenantID string) (*Context, error) {
	key := cacheKey(principalID, tenantID)
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && !now.After(entry.expiresAt) {
		c.hits.Add(1)
		return entry.context, nil
	}
	c.misses.Add(1)

	// The resolver is invoked outside the lock so a slow load for one key
	// never blocks lookups of other keys.
	resolved, err := c.resolver.Load(ctx, principalID, tenantID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{context: resolved, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return resolved, nil
}

// Invalidate drops the cached entry for (principal, tenant), forcing the
// next Resolve to hit the resolver.
func (c *ContextCache) Invalidate(principalID, tenantID string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(principalID, tenantID))
	c.mu.Unlock()
}

// StartCleanup starts the background cleanup goroutine.
// The goroutine periodically removes expired entries.
// It stops when ctx is cancelled or Stop() is called.
func (c *ContextCache) StartCleanup(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.cleanup()
			}
		}
	}()
}

// cleanup removes expired entries from the cache.
func (c *ContextCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cleaned := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		c.logger.Debug("tenant context cache cleanup completed",
			"cleaned_entries", cleaned, "remaining_entries", len(c.entries))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (c *ContextCache) Stop() {
	c.once.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
}

// Size returns the current number of cached entries, live or expired.
// Useful for testing cleanup behavior.
func (c *ContextCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats reports cumulative hit and miss counts since creation.
// Misses include expired entries that had to be reloaded.
func (c *ContextCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
