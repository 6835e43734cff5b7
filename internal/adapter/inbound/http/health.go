package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gatewarden/gatewarden/internal/domain/tenant"
)

// HealthResponse is the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// CounterStorePinger is the health slice of a counter store.
type CounterStorePinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker verifies component health.
type HealthChecker struct {
	counters CounterStorePinger
	cache    *tenant.ContextCache
	version  string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(counters CounterStorePinger, cache *tenant.ContextCache, version string) *HealthChecker {
	return &HealthChecker{
		counters: counters,
		cache:    cache,
		version:  version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.counters != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := h.counters.Ping(pingCtx); err != nil {
			checks["counter_store"] = fmt.Sprintf("unreachable: %v", err)
			healthy = false
		} else {
			checks["counter_store"] = "ok"
		}
		cancel()
	} else {
		checks["counter_store"] = "not configured"
	}

	if h.cache != nil {
		hits, misses := h.cache.Stats()
		checks["context_cache"] = fmt.Sprintf("ok: %d entries, %d hits, %d misses",
			h.cache.Size(), hits, misses)
	} else {
		checks["context_cache"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
