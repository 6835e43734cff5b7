// Package service contains the application services composing the domain.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gatewarden/gatewarden/internal/domain/quota"
	"github.com/gatewarden/gatewarden/internal/domain/ratelimit"
	"github.com/gatewarden/gatewarden/internal/domain/tenant"
)

// Stage names the pipeline stage a verdict was produced in.
type Stage string

const (
	StageRateLimit      Stage = "rate_limit"
	StageContextResolve Stage = "context_resolve"
	StageQuota          Stage = "quota"
	StageAdmitted       Stage = "admitted"
)

// RejectionCode is the stable, client-facing error code for a rejection.
type RejectionCode string

const (
	CodeRateLimitExceeded   RejectionCode = "rate_limit_exceeded"
	CodeTenantNotFound      RejectionCode = "tenant_not_found"
	CodeTenantSuspended     RejectionCode = "tenant_suspended"
	CodeAccessDenied        RejectionCode = "access_denied"
	CodeFeatureNotAvailable RejectionCode = "feature_not_available"
	CodeLimitExceeded       RejectionCode = "limit_exceeded"
	CodeInternalError       RejectionCode = "internal_error"
)

// Limiter key strategies.
const (
	KeyStrategyPrincipal = "principal"
	KeyStrategyIP        = "ip"
)

// UsageReader reports current usage for a (tenant, limit) pair. The
// business stores owning the real counts are out of scope; they are
// consumed only through this narrow read interface.
type UsageReader interface {
	CurrentUsage(ctx context.Context, tenantID, limitName string) (int64, error)
}

// AdmitRequest describes one inbound call to be admitted.
type AdmitRequest struct {
	// PrincipalID is the authenticated caller, empty if anonymous.
	PrincipalID string
	// TenantID is the tenant the call addresses. Empty skips context
	// resolution and quota checks (rate limiting still applies).
	TenantID string
	// RemoteIP keys the limiter when the caller is anonymous.
	RemoteIP string
	// Route optionally namespaces the rate limit bucket (e.g. "login").
	Route string
	// KeyStrategy forces the limiter key choice: KeyStrategyIP keys on the
	// network address even for authenticated callers (useful for routes hit
	// before authentication completes). Empty or KeyStrategyPrincipal keys
	// on the principal when one is present.
	KeyStrategy string

	// Feature, when set, gates the call on the named plan feature.
	Feature string
	// LimitName, when set, checks the named plan limit.
	LimitName string
	// UsageIncrement is how many units the call consumes (default 1).
	UsageIncrement int64
	// OverageCeiling, when positive, permits overage up to limit+N.
	OverageCeiling int64

	// Degrade opts into graceful degradation: quota/feature denials do
	// not reject the call, they annotate the verdict instead so the
	// handler can serve a reduced response.
	Degrade bool
}

// Verdict is the pipeline's decision for one request.
type Verdict struct {
	// Admitted indicates whether the call may reach business logic.
	Admitted bool
	// Stage is where the pipeline stopped (StageAdmitted on success).
	Stage Stage
	// Code is set on rejection, and on restricted verdicts so the
	// handler can annotate its reduced response.
	Code RejectionCode
	// Message is the human-readable companion to Code.
	Message string

	// RateLimit is always populated so callers can emit quota headers
	// on every outcome, admitted or not.
	RateLimit ratelimit.AdmitResult
	// RateKey is the limiter key used, for post-hoc outcome reporting.
	RateKey string

	// Context is the resolved tenant context, nil before resolution
	// succeeds or when no tenant was addressed.
	Context *tenant.Context
	// Decision carries the numeric detail of a limit check.
	Decision *quota.Decision

	// Restricted is true when Degrade converted a denial into an
	// annotated admission.
	Restricted bool
}

// AdmissionService orchestrates rate limiting, tenant context resolution
// and quota enforcement per request. Stages run strictly in order and
// short-circuit on first failure, except when the caller opted into
// graceful degradation for the quota stage.
type AdmissionService struct {
	limiter  *ratelimit.WindowedLimiter
	contexts *tenant.ContextCache
	usage    UsageReader
	logger   *slog.Logger

	limitFor func(route string) ratelimit.Config
}

// NewAdmissionService creates the pipeline. limitFor maps a route to its
// rate limit parameters; it is called once per request and must handle the
// empty route (global defaults).
func NewAdmissionService(
	limiter *ratelimit.WindowedLimiter,
	contexts *tenant.ContextCache,
	usage UsageReader,
	limitFor func(route string) ratelimit.Config,
	logger *slog.Logger,
) *AdmissionService {
	return &AdmissionService{
		limiter:  limiter,
		contexts: contexts,
		usage:    usage,
		logger:   logger,
		limitFor: limitFor,
	}
}

// RateKey derives the limiter key for a request: principal identity when
// authenticated, network address otherwise, namespaced by route.
func RateKey(req AdmitRequest) string {
	if req.KeyStrategy != KeyStrategyIP && req.PrincipalID != "" {
		return ratelimit.FormatRouteKey(req.Route, ratelimit.KeyTypePrincipal, req.PrincipalID)
	}
	return ratelimit.FormatRouteKey(req.Route, ratelimit.KeyTypeIP, req.RemoteIP)
}

// Admit runs the pipeline for one request.
func (s *AdmissionService) Admit(ctx context.Context, req AdmitRequest) Verdict {
	key := RateKey(req)
	cfg := s.limitFor(req.Route)

	result := s.limiter.Admit(ctx, key, cfg)
	if !result.Admitted {
		return Verdict{
			Stage:     StageRateLimit,
			Code:      CodeRateLimitExceeded,
			Message:   "rate limit exceeded, slow down",
			RateLimit: result,
			RateKey:   key,
		}
	}

	verdict := Verdict{RateLimit: result, RateKey: key}

	if req.TenantID != "" {
		tc, rejection := s.resolveContext(ctx, req)
		if rejection != nil {
			rejection.RateLimit = result
			rejection.RateKey = key
			return *rejection
		}
		verdict.Context = tc

		if rejection := s.enforceQuota(ctx, req, tc, &verdict); rejection != nil {
			rejection.RateLimit = result
			rejection.RateKey = key
			rejection.Context = tc
			return *rejection
		}
	}

	verdict.Admitted = true
	verdict.Stage = StageAdmitted
	return verdict
}

// resolveContext runs the context resolution stage.
// Unlike rate limiting, this stage fails closed: admitting a request with
// unknown entitlements is unsafe.
func (s *AdmissionService) resolveContext(ctx context.Context, req AdmitRequest) (*tenant.Context, *Verdict) {
	tc, err := s.contexts.Resolve(ctx, req.PrincipalID, req.TenantID)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			return nil, &Verdict{
				Stage:   StageContextResolve,
				Code:    CodeTenantNotFound,
				Message: fmt.Sprintf("tenant %q not found", req.TenantID),
			}
		case errors.Is(err, tenant.ErrAccessDenied):
			return nil, &Verdict{
				Stage:   StageContextResolve,
				Code:    CodeAccessDenied,
				Message: "no active membership for this tenant",
			}
		default:
			s.logger.Error("tenant context resolution failed",
				"principal_id", req.PrincipalID, "tenant_id", req.TenantID, "error", err)
			return nil, &Verdict{
				Stage:   StageContextResolve,
				Code:    CodeInternalError,
				Message: "could not resolve tenant context",
			}
		}
	}

	if tc.Suspended() {
		return nil, &Verdict{
			Stage:   StageContextResolve,
			Code:    CodeTenantSuspended,
			Message: fmt.Sprintf("tenant %q is suspended", req.TenantID),
			Context: tc,
		}
	}

	return tc, nil
}

// enforceQuota runs the feature gate and limit check. With Degrade set,
// denials annotate the verdict instead of rejecting.
func (s *AdmissionService) enforceQuota(ctx context.Context, req AdmitRequest, tc *tenant.Context, verdict *Verdict) *Verdict {
	if req.Feature != "" && !quota.CheckFeature(tc, req.Feature) {
		if !req.Degrade {
			return &Verdict{
				Stage:   StageQuota,
				Code:    CodeFeatureNotAvailable,
				Message: fmt.Sprintf("feature %q is not available on the current plan", req.Feature),
			}
		}
		verdict.Restricted = true
		verdict.Code = CodeFeatureNotAvailable
	}

	if req.LimitName != "" {
		usage, err := s.usage.CurrentUsage(ctx, tc.TenantID, req.LimitName)
		if err != nil {
			// Same fail-closed posture as context resolution.
			s.logger.Error("usage lookup failed",
				"tenant_id", tc.TenantID, "limit", req.LimitName, "error", err)
			return &Verdict{
				Stage:   StageQuota,
				Code:    CodeInternalError,
				Message: "could not determine current usage",
			}
		}

		decision := quota.CheckLimit(tc, req.LimitName, usage, quota.LimitOptions{
			RequestedIncrement: req.UsageIncrement,
			OverageCeiling:     req.OverageCeiling,
		})
		verdict.Decision = &decision

		if !decision.Allowed {
			if !req.Degrade {
				return &Verdict{
					Stage:    StageQuota,
					Code:     CodeLimitExceeded,
					Message:  decision.Reason,
					Decision: &decision,
				}
			}
			verdict.Restricted = true
			verdict.Code = CodeLimitExceeded
		}
	}

	return nil
}

// ReportOutcome forwards the request outcome to the limiter so count
// policies can refund hits. Call after the downstream handler has run.
func (s *AdmissionService) ReportOutcome(ctx context.Context, verdict Verdict, route string, success bool) {
	if verdict.RateKey == "" || verdict.RateLimit.FailedOpen {
		return
	}
	s.limiter.ReportOutcome(ctx, verdict.RateKey, s.limitFor(route), success)
}
