// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/domain/ratelimit"
)

// CounterStore implements ratelimit.CounterStore with an in-memory map.
// Thread-safe for concurrent access. For development/testing only; use the
// sqlite store when counters must survive restarts or be shared.
// Includes background cleanup to prevent unbounded memory growth.
type CounterStore struct {
	counters        map[string]ratelimit.Counter
	mu              sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxTTL          time.Duration
}

// NewCounterStore creates a new in-memory counter store with default
// cleanup settings (interval 5 minutes, maxTTL 1 hour).
func NewCounterStore() *CounterStore {
	return NewCounterStoreWithConfig(5*time.Minute, time.Hour)
}

// NewCounterStoreWithConfig creates a new in-memory counter store with
// custom cleanup settings.
func NewCounterStoreWithConfig(cleanupInterval, maxTTL time.Duration) *CounterStore {
	return &CounterStore{
		counters:        make(map[string]ratelimit.Counter),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxTTL:          maxTTL,
	}
}

// Increment adds one hit for key in the window ending at windowEnd.
// A stored counter from an earlier window is reset in place, so concurrent
// first-writers of a fresh window converge instead of clobbering.
func (s *CounterStore) Increment(_ context.Context, key string, windowStart, windowEnd time.Time) (ratelimit.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || c.WindowEnd.Before(windowEnd) {
		c = ratelimit.Counter{Key: key, WindowStart: windowStart, WindowEnd: windowEnd}
	}
	c.HitCount++
	c.TotalCount++
	c.LastRequestAt = time.Now()
	s.counters[key] = c
	return c, nil
}

// Decrement refunds one hit for key while the stored counter still belongs
// to the window ending at windowEnd. HitCount never goes below zero.
func (s *CounterStore) Decrement(_ context.Context, key string, windowEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !c.WindowEnd.Equal(windowEnd) || c.HitCount == 0 {
		return nil
	}
	c.HitCount--
	s.counters[key] = c
	return nil
}

// Get retrieves the stored counter for key.
func (s *CounterStore) Get(_ context.Context, key string) (ratelimit.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return ratelimit.Counter{}, ratelimit.ErrCounterNotFound
	}
	return c, nil
}

// StartCleanup starts the background cleanup goroutine.
// The goroutine periodically removes counters whose window ended more than
// maxTTL ago. It stops when ctx is cancelled or Stop() is called.
func (s *CounterStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

// cleanup removes counters from long-dead windows.
func (s *CounterStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.maxTTL)
	cleaned := 0
	for key, c := range s.counters {
		if c.WindowEnd.Before(cutoff) {
			delete(s.counters, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("counter store cleanup completed",
			"cleaned_keys", cleaned, "remaining_keys", len(s.counters))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *CounterStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Ping reports whether the store is usable. The lock acquisition is the
// check; a wedged store hangs here instead of in a request.
func (s *CounterStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil
}

// Size returns the current number of tracked keys.
// Useful for testing and monitoring memory usage.
func (s *CounterStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

// Compile-time interface verification.
var _ ratelimit.CounterStore = (*CounterStore)(nil)
