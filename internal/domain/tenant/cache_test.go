package tenant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// countingResolver counts Load invocations and returns canned contexts.
type countingResolver struct {
	calls atomic.Int64
	err   error
}

func (r *countingResolver) Load(_ context.Context, principalID, tenantID string) (*Context, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &Context{
		TenantID:     tenantID,
		TenantStatus: StatusActive,
		Membership:   Membership{TenantID: tenantID, PrincipalID: principalID, Role: "member", Active: true},
		Limits:       map[string]int64{"projects": 10},
		Features:     map[string]bool{"webhooks": true},
		ResolvedAt:   time.Now(),
	}, nil
}

func TestContextCache_HitSkipsResolver(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver := &countingResolver{}
	cache := NewContextCache(resolver, slog.New(slog.NewTextHandler(io.Discard, nil)))

	first, err := cache.Resolve(ctx, "alice", "acme")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	second, err := cache.Resolve(ctx, "alice", "acme")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if got := resolver.calls.Load(); got != 1 {
		t.Errorf("resolver called %d times, want 1", got)
	}
	if first != second {
		t.Error("cache hit returned a different context value")
	}
}

func TestContextCache_ExpiryTriggersReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver := &countingResolver{}
	cache := NewContextCacheWithConfig(resolver, 5*time.Minute, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }

	if _, err := cache.Resolve(ctx, "alice", "acme"); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	// Still live one second before expiry.
	cache.now = func() time.Time { return base.Add(5*time.Minute - time.Second) }
	if _, err := cache.Resolve(ctx, "alice", "acme"); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got := resolver.calls.Load(); got != 1 {
		t.Fatalf("resolver called %d times before expiry, want 1", got)
	}

	// Dead after expiry; next lookup reloads.
	cache.now = func() time.Time { return base.Add(5*time.Minute + time.Second) }
	if _, err := cache.Resolve(ctx, "alice", "acme"); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got := resolver.calls.Load(); got != 2 {
		t.Errorf("resolver called %d times after expiry, want 2", got)
	}
}

func TestContextCache_DistinctKeysDoNotShareEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver := &countingResolver{}
	cache := NewContextCache(resolver, slog.New(slog.NewTextHandler(io.Discard, nil)))

	a, _ := cache.Resolve(ctx, "alice", "acme")
	b, _ := cache.Resolve(ctx, "bob", "acme")
	c, _ := cache.Resolve(ctx, "alice", "globex")

	if a.Membership.PrincipalID == b.Membership.PrincipalID {
		t.Error("distinct principals resolved to the same membership")
	}
	if a.TenantID == c.TenantID {
		t.Error("distinct tenants resolved to the same tenant")
	}
	if got := resolver.calls.Load(); got != 3 {
		t.Errorf("resolver called %d times, want 3", got)
	}
}

func TestContextCache_FailuresAreNotCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver := &countingResolver{err: errors.New("store timeout")}
	cache := NewContextCache(resolver, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := cache.Resolve(ctx, "alice", "acme"); err == nil {
		t.Fatal("Resolve() = nil error, want failure")
	}

	resolver.err = nil
	if _, err := cache.Resolve(ctx, "alice", "acme"); err != nil {
		t.Fatalf("Resolve() after recovery error: %v", err)
	}
	if got := resolver.calls.Load(); got != 2 {
		t.Errorf("resolver called %d times, want 2 (failure not cached)", got)
	}
}

func TestContextCache_ConcurrentResolves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver := &countingResolver{}
	cache := NewContextCache(resolver, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func(tenant string) {
				defer wg.Done()
				tc, err := cache.Resolve(ctx, "alice", tenant)
				if err != nil {
					t.Errorf("Resolve() error: %v", err)
					return
				}
				if tc.TenantID != tenant {
					t.Errorf("TenantID = %q, want %q", tc.TenantID, tenant)
				}
			}(fmt.Sprintf("tenant-%d", i))
		}
	}
	wg.Wait()

	if cache.Size() != 10 {
		t.Errorf("Size() = %d, want 10", cache.Size())
	}
}

func TestContextCache_CleanupRemovesExpiredEntries(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	resolver := &countingResolver{}
	cache := NewContextCacheWithConfig(resolver, 10*time.Millisecond, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := cache.Resolve(ctx, "alice", "acme"); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	cache.StartCleanup(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for cache.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cache.Stop()

	if cache.Size() != 0 {
		t.Errorf("Size() = %d after cleanup, want 0", cache.Size())
	}
}

func TestContextCache_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	cache := NewContextCache(&countingResolver{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cache.StartCleanup(context.Background())
	cache.Stop()
	cache.Stop()
}
