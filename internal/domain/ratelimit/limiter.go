package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// WindowedLimiter enforces a per-key hit ceiling within deterministic
// wall-clock windows, backed by a shared CounterStore.
//
// The limiter fails open: if the store is unreachable the request is
// admitted and the failure logged. Rate limiting must never be a single
// point of total outage.
type WindowedLimiter struct {
	store  CounterStore
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewWindowedLimiter creates a limiter backed by the given counter store.
func NewWindowedLimiter(store CounterStore, logger *slog.Logger) *WindowedLimiter {
	return &WindowedLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WindowEnd returns the deterministic end of the window containing now.
// The boundary is the next multiple of window after now, so all callers
// sharing a window length converge on the same boundary without
// coordination.
func WindowEnd(now time.Time, window time.Duration) time.Time {
	w := window.Nanoseconds()
	end := (now.UnixNano()/w + 1) * w
	return time.Unix(0, end)
}

// Admit checks whether a request identified by key may proceed under cfg.
//
// Admit optimistically increments the counter; when cfg.CountPolicy is not
// CountAll the caller should invoke ReportOutcome once the request outcome
// is known so the hit can be refunded.
func (l *WindowedLimiter) Admit(ctx context.Context, key string, cfg Config) AdmitResult {
	now := l.now()
	windowEnd := WindowEnd(now, cfg.Window)
	windowStart := windowEnd.Add(-cfg.Window)

	counter, err := l.store.Increment(ctx, key, windowStart, windowEnd)
	if err != nil {
		l.logger.Error("counter store unavailable, admitting without counting",
			"key", key, "error", err)
		return AdmitResult{
			Admitted:   true,
			Remaining:  cfg.MaxHits,
			Limit:      cfg.MaxHits,
			ResetAt:    windowEnd,
			FailedOpen: true,
		}
	}

	if counter.HitCount > cfg.MaxHits {
		return AdmitResult{
			Admitted:   false,
			Remaining:  0,
			Limit:      cfg.MaxHits,
			ResetAt:    windowEnd,
			RetryAfter: windowEnd.Sub(now),
		}
	}

	return AdmitResult{
		Admitted:  true,
		Remaining: cfg.MaxHits - counter.HitCount,
		Limit:     cfg.MaxHits,
		ResetAt:   windowEnd,
	}
}

// ReportOutcome applies the count policy once the downstream handler has
// run. Under SkipSuccessful a successful request's hit is refunded; under
// SkipFailed a failed request's hit is refunded.
//
// The refund is best-effort: a store failure here is logged and never
// surfaced as a request error.
func (l *WindowedLimiter) ReportOutcome(ctx context.Context, key string, cfg Config, success bool) {
	refund := (cfg.CountPolicy == SkipSuccessful && success) ||
		(cfg.CountPolicy == SkipFailed && !success)
	if !refund {
		return
	}

	windowEnd := WindowEnd(l.now(), cfg.Window)
	if err := l.store.Decrement(ctx, key, windowEnd); err != nil {
		l.logger.Warn("failed to refund rate limit hit",
			"key", key, "policy", cfg.CountPolicy, "error", err)
	}
}
