package ratelimit

import (
	"context"
	"time"
)

// CounterStore provides durable per-key window counters.
// This interface is defined in the domain to avoid circular imports.
// Implementations: SQLite (prod), in-memory (dev/test).
//
// Implementations must serialize updates per key: Increment is a
// merge-upsert, never a read-then-blind-write, so concurrent hits on the
// same key cannot lose updates. Cross-key atomicity is not required.
type CounterStore interface {
	// Increment adds one hit to the counter for key in the window ending at
	// windowEnd and returns the updated counter.
	// If no counter exists for key, or the stored counter belongs to an
	// earlier window, the counter is reset to a fresh window first.
	Increment(ctx context.Context, key string, windowStart, windowEnd time.Time) (Counter, error)

	// Decrement refunds one hit from the counter for key, but only while the
	// stored counter still belongs to the window ending at windowEnd.
	// HitCount never goes below zero. Decrementing an absent or rolled-over
	// counter is a no-op.
	Decrement(ctx context.Context, key string, windowEnd time.Time) error

	// Get retrieves the stored counter for key.
	// Returns ErrCounterNotFound if no counter exists.
	Get(ctx context.Context, key string) (Counter, error)
}
