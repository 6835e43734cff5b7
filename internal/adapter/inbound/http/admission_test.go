package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/internal/domain/quota"
	"github.com/gatewarden/gatewarden/internal/domain/ratelimit"
	"github.com/gatewarden/gatewarden/internal/service"
)

// scriptedAdmitter returns a fixed verdict and records what it was asked.
type scriptedAdmitter struct {
	verdict service.Verdict

	gotReq   service.AdmitRequest
	outcomes []bool
}

func (a *scriptedAdmitter) Admit(_ context.Context, req service.AdmitRequest) service.Verdict {
	a.gotReq = req
	return a.verdict
}

func (a *scriptedAdmitter) ReportOutcome(_ context.Context, _ service.Verdict, _ string, success bool) {
	a.outcomes = append(a.outcomes, success)
}

func admittedVerdict() service.Verdict {
	return service.Verdict{
		Admitted: true,
		Stage:    service.StageAdmitted,
		RateKey:  "k",
		RateLimit: ratelimit.AdmitResult{
			Admitted:  true,
			Limit:     10,
			Remaining: 7,
			ResetAt:   time.UnixMilli(1_700_000_060_000),
		},
	}
}

func serve(t *testing.T, admitter Admitter, rule RouteRule, legacy bool, next http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	if next == nil {
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	handler := AdmissionMiddleware(admitter, rule, nil, legacy)(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/thing", nil)
	req.Header.Set(TenantHeader, "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdmissionMiddleware_HeadersOnAdmit(t *testing.T) {
	t.Parallel()

	admitter := &scriptedAdmitter{verdict: admittedVerdict()}
	rec := serve(t, admitter, RouteRule{Route: "things"}, false, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("RateLimit-Limit"); got != "10" {
		t.Errorf("RateLimit-Limit = %q, want 10", got)
	}
	if got := rec.Header().Get("RateLimit-Remaining"); got != "7" {
		t.Errorf("RateLimit-Remaining = %q, want 7", got)
	}
	wantReset := strconv.FormatInt(time.UnixMilli(1_700_000_060_000).UnixMilli(), 10)
	if got := rec.Header().Get("RateLimit-Reset"); got != wantReset {
		t.Errorf("RateLimit-Reset = %q, want %q", got, wantReset)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("legacy headers emitted without opt-in")
	}
	if admitter.gotReq.TenantID != "acme" || admitter.gotReq.Route != "things" {
		t.Errorf("AdmitRequest = %+v, want tenant acme on route things", admitter.gotReq)
	}
}

func TestAdmissionMiddleware_LegacyHeaders(t *testing.T) {
	t.Parallel()

	admitter := &scriptedAdmitter{verdict: admittedVerdict()}
	rec := serve(t, admitter, RouteRule{}, true, nil)

	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "7" {
		t.Errorf("X-RateLimit-Remaining = %q, want 7", got)
	}
}

func TestAdmissionMiddleware_RateLimited(t *testing.T) {
	t.Parallel()

	admitter := &scriptedAdmitter{verdict: service.Verdict{
		Stage:   service.StageRateLimit,
		Code:    service.CodeRateLimitExceeded,
		Message: "rate limit exceeded, slow down",
		RateKey: "k",
		RateLimit: ratelimit.AdmitResult{
			Limit:      10,
			Remaining:  0,
			ResetAt:    time.Now().Add(42 * time.Second),
			RetryAfter: 42 * time.Second,
		},
	}}
	rec := serve(t, admitter, RouteRule{}, false, nil)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After = %q, want 42", got)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "rate_limit_exceeded" {
		t.Errorf("code = %q, want rate_limit_exceeded", body.Error.Code)
	}
	if body.Error.RetryAfter != 42 {
		t.Errorf("retryAfter = %d, want 42", body.Error.RetryAfter)
	}
	if len(admitter.outcomes) != 0 {
		t.Error("rejected request must not report an outcome")
	}
}

func TestAdmissionMiddleware_RejectionStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		verdict    service.Verdict
		wantStatus int
		wantBody   errorDetail
	}{
		{
			name: "unknown tenant",
			verdict: service.Verdict{
				Stage: service.StageContextResolve, Code: service.CodeTenantNotFound,
				Message: `tenant "ghost" not found`,
			},
			wantStatus: http.StatusNotFound,
			wantBody:   errorDetail{Code: "tenant_not_found", Message: `tenant "ghost" not found`},
		},
		{
			name: "suspended tenant",
			verdict: service.Verdict{
				Stage: service.StageContextResolve, Code: service.CodeTenantSuspended,
				Message: `tenant "acme" is suspended`,
			},
			wantStatus: http.StatusForbidden,
			wantBody:   errorDetail{Code: "tenant_suspended", Message: `tenant "acme" is suspended`},
		},
		{
			name: "limit exceeded carries numbers",
			verdict: service.Verdict{
				Stage: service.StageQuota, Code: service.CodeLimitExceeded,
				Message:  "projects limit reached",
				Decision: &quota.Decision{LimitName: "projects", CurrentUsage: 10, Limit: 10},
			},
			wantStatus: http.StatusForbidden,
			wantBody: errorDetail{
				Code: "limit_exceeded", Message: "projects limit reached",
				Limit: 10, CurrentUsage: 10, UpgradeRequired: true,
			},
		},
		{
			name: "internal error",
			verdict: service.Verdict{
				Stage: service.StageContextResolve, Code: service.CodeInternalError,
				Message: "could not resolve tenant context",
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   errorDetail{Code: "internal_error", Message: "could not resolve tenant context"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			admitter := &scriptedAdmitter{verdict: tt.verdict}
			rec := serve(t, admitter, RouteRule{}, false, nil)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantBody {
				t.Errorf("body = %+v, want %+v", body.Error, tt.wantBody)
			}
		})
	}
}

func TestAdmissionMiddleware_RestrictedAnnotation(t *testing.T) {
	t.Parallel()

	v := admittedVerdict()
	v.Restricted = true
	v.Code = service.CodeFeatureNotAvailable
	admitter := &scriptedAdmitter{verdict: v}

	var sawRestriction string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRestriction = RestrictionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	rec := serve(t, admitter, RouteRule{Degrade: true}, false, next)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sawRestriction != "feature_not_available" {
		t.Errorf("restriction annotation = %q, want feature_not_available", sawRestriction)
	}
}

func TestAdmissionMiddleware_ReportsOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		wantSuccess bool
	}{
		{name: "2xx is success", status: http.StatusCreated, wantSuccess: true},
		{name: "4xx is failure", status: http.StatusUnprocessableEntity, wantSuccess: false},
		{name: "5xx is failure", status: http.StatusBadGateway, wantSuccess: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			admitter := &scriptedAdmitter{verdict: admittedVerdict()}
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			serve(t, admitter, RouteRule{}, false, next)

			if len(admitter.outcomes) != 1 {
				t.Fatalf("outcomes reported = %d, want 1", len(admitter.outcomes))
			}
			if admitter.outcomes[0] != tt.wantSuccess {
				t.Errorf("reported success = %v, want %v", admitter.outcomes[0], tt.wantSuccess)
			}
		})
	}
}

func TestAdmissionMiddleware_FailOpenStillReports(t *testing.T) {
	t.Parallel()

	// The middleware forwards every outcome; skipping refunds for fail-open
	// verdicts is the service's decision, keyed off the verdict it is handed.
	v := admittedVerdict()
	v.RateLimit.FailedOpen = true
	admitter := &scriptedAdmitter{verdict: v}
	serve(t, admitter, RouteRule{}, false, nil)

	if len(admitter.outcomes) != 1 {
		t.Fatalf("outcomes reported = %d, want 1", len(admitter.outcomes))
	}
}

func TestAdmissionMiddleware_LogsThroughContext(t *testing.T) {
	t.Parallel()

	// Rejections log via the context logger; with none set this must not
	// panic and must still produce the JSON body.
	admitter := &scriptedAdmitter{verdict: service.Verdict{
		Stage: service.StageContextResolve, Code: service.CodeAccessDenied,
		Message: "no active membership for this tenant",
	}}
	handler := AdmissionMiddleware(admitter, RouteRule{}, nil, false)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/thing", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
