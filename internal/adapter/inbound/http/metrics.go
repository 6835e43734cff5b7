package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gatewarden/gatewarden/internal/domain/tenant"
	"github.com/gatewarden/gatewarden/internal/service"
)

// Metrics holds all Prometheus metrics for gatewarden.
// Pass to components that need to record metrics.
type Metrics struct {
	AdmissionsTotal    *prometheus.CounterVec
	AdmissionDuration  *prometheus.HistogramVec
	RateLimitDecisions *prometheus.CounterVec
	FailOpenTotal      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		AdmissionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatewarden",
				Name:      "admissions_total",
				Help:      "Total admission verdicts by pipeline stage and outcome",
			},
			[]string{"stage", "outcome"}, // outcome=admitted/restricted/rejected
		),
		AdmissionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gatewarden",
				Name:      "admission_duration_seconds",
				Help:      "Time spent deciding one admission",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RateLimitDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatewarden",
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter decisions",
			},
			[]string{"decision"}, // decision=allowed/rejected
		),
		FailOpenTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "gatewarden",
				Name:      "rate_limit_fail_open_total",
				Help:      "Requests admitted without counting because the counter store failed",
			},
		),
	}
}

// ObserveVerdict records one pipeline decision.
func (m *Metrics) ObserveVerdict(route string, v service.Verdict, elapsed time.Duration) {
	outcome := "rejected"
	switch {
	case v.Admitted && v.Restricted:
		outcome = "restricted"
	case v.Admitted:
		outcome = "admitted"
	}
	m.AdmissionsTotal.WithLabelValues(string(v.Stage), outcome).Inc()
	m.AdmissionDuration.WithLabelValues(route).Observe(elapsed.Seconds())

	decision := "allowed"
	if !v.RateLimit.Admitted {
		decision = "rejected"
	}
	m.RateLimitDecisions.WithLabelValues(decision).Inc()
	if v.RateLimit.FailedOpen {
		m.FailOpenTotal.Inc()
	}
}

// RegisterContextCacheStats exposes the tenant context cache's hit and miss
// counters on the registry. The cache owns the counts; the collector reads
// them on scrape.
func RegisterContextCacheStats(reg prometheus.Registerer, cache *tenant.ContextCache) {
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gatewarden",
			Name:      "context_cache_hits_total",
			Help:      "Tenant context cache hits",
		}, func() float64 {
			hits, _ := cache.Stats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gatewarden",
			Name:      "context_cache_misses_total",
			Help:      "Tenant context cache misses",
		}, func() float64 {
			_, misses := cache.Stats()
			return float64(misses)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "gatewarden",
			Name:      "context_cache_entries",
			Help:      "Tenant context cache resident entries",
		}, func() float64 {
			return float64(cache.Size())
		}),
	)
}
