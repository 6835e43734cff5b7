package http

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gatewarden/gatewarden/internal/ctxkey"
	"github.com/gatewarden/gatewarden/internal/service"
)

// TenantHeader carries the tenant the request addresses.
const TenantHeader = "X-Tenant-ID"

// Admitter is the slice of the admission service the middleware needs.
// Defined here so handler tests can substitute a scripted implementation.
type Admitter interface {
	Admit(ctx context.Context, req service.AdmitRequest) service.Verdict
	ReportOutcome(ctx context.Context, verdict service.Verdict, route string, success bool)
}

// RouteRule describes the admission requirements of one protected route.
type RouteRule struct {
	// Route namespaces the rate limit bucket and selects per-route limiter
	// overrides. Empty uses the global defaults.
	Route string
	// KeyStrategy forces IP keying for pre-auth routes. Empty keys on the
	// principal when one is present.
	KeyStrategy string
	// Feature gates the route on a plan feature when set.
	Feature string
	// LimitName checks the named plan limit when set.
	LimitName string
	// UsageIncrement is the units one request consumes (default 1).
	UsageIncrement int64
	// OverageCeiling permits overage up to limit+N when positive.
	OverageCeiling int64
	// Degrade serves a reduced response on quota denial instead of
	// rejecting outright.
	Degrade bool
}

// AdmissionMiddleware guards a handler with the admission pipeline.
// Rate limit headers are written on every outcome, rejections become JSON
// error responses, and the request outcome is reported back to the limiter
// after the handler runs so count policies can refund hits.
func AdmissionMiddleware(admitter Admitter, rule RouteRule, metrics *Metrics, legacyHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := service.AdmitRequest{
				PrincipalID:    PrincipalFromContext(r.Context()),
				TenantID:       r.Header.Get(TenantHeader),
				RemoteIP:       RemoteIPFromContext(r.Context()),
				Route:          rule.Route,
				KeyStrategy:    rule.KeyStrategy,
				Feature:        rule.Feature,
				LimitName:      rule.LimitName,
				UsageIncrement: rule.UsageIncrement,
				OverageCeiling: rule.OverageCeiling,
				Degrade:        rule.Degrade,
			}

			start := time.Now()
			verdict := admitter.Admit(r.Context(), req)
			if metrics != nil {
				metrics.ObserveVerdict(rule.Route, verdict, time.Since(start))
			}

			writeRateLimitHeaders(w, verdict, legacyHeaders)

			if !verdict.Admitted {
				LoggerFromContext(r.Context()).Info("request rejected",
					"stage", verdict.Stage, "code", verdict.Code, "route", rule.Route)
				writeRejection(w, verdict)
				return
			}

			ctx := r.Context()
			if verdict.Restricted {
				ctx = context.WithValue(ctx, ctxkey.RestrictionKey{}, string(verdict.Code))
			}

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			admitter.ReportOutcome(r.Context(), verdict, rule.Route, wrapped.status < http.StatusBadRequest)
		})
	}
}

// RestrictionFromContext returns the degraded-admission code stored by
// AdmissionMiddleware, empty when the verdict was unrestricted.
func RestrictionFromContext(ctx context.Context) string {
	code, _ := ctx.Value(ctxkey.RestrictionKey{}).(string)
	return code
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// writeRateLimitHeaders emits the quota headers on every outcome so clients
// can pace themselves before hitting the ceiling. Reset is epoch millis.
func writeRateLimitHeaders(w http.ResponseWriter, v service.Verdict, legacy bool) {
	limit := strconv.FormatInt(v.RateLimit.Limit, 10)
	remaining := strconv.FormatInt(v.RateLimit.Remaining, 10)
	reset := strconv.FormatInt(v.RateLimit.ResetAt.UnixMilli(), 10)

	h := w.Header()
	h.Set("RateLimit-Limit", limit)
	h.Set("RateLimit-Remaining", remaining)
	h.Set("RateLimit-Reset", reset)
	if legacy {
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", remaining)
		h.Set("X-RateLimit-Reset", reset)
	}
}

// errorDetail is the payload inside every rejection body.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	RetryAfter      int64 `json:"retryAfter,omitempty"` // seconds
	Limit           int64 `json:"limit,omitempty"`
	CurrentUsage    int64 `json:"currentUsage,omitempty"`
	UpgradeRequired bool  `json:"upgradeRequired,omitempty"`
}

// errorResponse is the envelope for rejection bodies.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// writeRejection translates a rejecting verdict into status code and body.
func writeRejection(w http.ResponseWriter, v service.Verdict) {
	detail := errorDetail{Code: string(v.Code), Message: v.Message}
	status := http.StatusForbidden

	switch v.Code {
	case service.CodeRateLimitExceeded:
		status = http.StatusTooManyRequests
		retryAfter := int64(math.Ceil(v.RateLimit.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		detail.RetryAfter = retryAfter
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	case service.CodeTenantNotFound:
		status = http.StatusNotFound
	case service.CodeTenantSuspended, service.CodeAccessDenied:
		status = http.StatusForbidden
	case service.CodeFeatureNotAvailable:
		detail.UpgradeRequired = true
	case service.CodeLimitExceeded:
		detail.UpgradeRequired = true
		if v.Decision != nil {
			detail.Limit = v.Decision.Limit
			detail.CurrentUsage = v.Decision.CurrentUsage
		}
	case service.CodeInternalError:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: detail})
}
