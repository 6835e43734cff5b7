package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// featureAliases maps derived feature names to the plan feature they
// mirror. The mapping is a pure, static table, not stored state: plans
// declare the source feature and the alias follows it.
var featureAliases = map[string]string{
	"integrations": "webhooks",
}

// Loader assembles immutable tenant contexts from the tenant, membership
// and plan stores. It performs no caching of its own; see ContextCache.
type Loader struct {
	tenants     TenantStore
	memberships MembershipStore
	plans       PlanStore
	logger      *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewLoader creates a Loader over the given read-only stores.
func NewLoader(tenants TenantStore, memberships MembershipStore, plans PlanStore, logger *slog.Logger) *Loader {
	return &Loader{
		tenants:     tenants,
		memberships: memberships,
		plans:       plans,
		logger:      logger,
		now:         time.Now,
	}
}

// Load resolves (principal, tenant) into a fresh Context.
//
// Outcomes:
//   - tenant absent: ErrTenantNotFound
//   - membership absent or inactive: ErrAccessDenied
//   - plan absent: configuration error, wrapped ErrPlanNotFound — the plan
//     catalog is expected to be internally consistent, so this is surfaced
//     loudly rather than silently defaulted
//   - suspended tenants resolve successfully; rejecting them is the
//     pipeline's job, with a distinct error kind
//
// Infrastructure failures (including context deadline) propagate as errors:
// admitting a request with unknown entitlements is unsafe.
func (l *Loader) Load(ctx context.Context, principalID, tenantID string) (*Context, error) {
	ten, err := l.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("fetch tenant %q: %w", tenantID, err)
	}

	member, err := l.memberships.GetMembership(ctx, tenantID, principalID)
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("fetch membership (%q, %q): %w", tenantID, principalID, err)
	}
	if !member.Active {
		return nil, ErrAccessDenied
	}

	plan, err := l.plans.GetPlan(ctx, ten.PlanID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			l.logger.Error("tenant references a plan missing from the catalog",
				"tenant_id", tenantID, "plan_id", ten.PlanID)
			return nil, fmt.Errorf("tenant %q references plan %q: %w", tenantID, ten.PlanID, ErrPlanNotFound)
		}
		return nil, fmt.Errorf("fetch plan %q: %w", ten.PlanID, err)
	}

	return &Context{
		TenantID:     ten.ID,
		TenantStatus: ten.Status,
		Membership:   *member,
		Limits:       copyLimits(plan.Limits),
		Features:     expandFeatures(plan.Features),
		ResolvedAt:   l.now(),
	}, nil
}

// copyLimits clones the plan's limit table so the context owns its maps.
func copyLimits(limits map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(limits))
	for name, v := range limits {
		out[name] = v
	}
	return out
}

// expandFeatures clones the plan's feature table and fills in aliases that
// the plan did not set explicitly.
func expandFeatures(features map[string]bool) map[string]bool {
	out := make(map[string]bool, len(features)+len(featureAliases))
	for name, v := range features {
		out[name] = v
	}
	for alias, source := range featureAliases {
		if _, set := out[alias]; !set {
			out[alias] = out[source]
		}
	}
	return out
}
