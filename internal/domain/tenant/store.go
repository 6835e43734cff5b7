package tenant

import (
	"context"
	"errors"
)

// Sentinel errors for catalog lookups and resolution outcomes.
var (
	// ErrTenantNotFound is returned when a tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrMembershipNotFound is returned when no membership record exists
	// for a (tenant, principal) pair.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrPlanNotFound is returned when a plan does not exist in the catalog.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrAccessDenied is returned when the principal's membership is
	// absent or inactive.
	ErrAccessDenied = errors.New("access denied")
)

// TenantStore provides read-only tenant lookups.
// This interface is defined in the domain to avoid circular imports.
// Implementations: in-memory catalog (YAML-loaded), external document store.
type TenantStore interface {
	// GetTenant retrieves a tenant by ID.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	GetTenant(ctx context.Context, id string) (*Tenant, error)
}

// MembershipStore provides read-only membership lookups.
type MembershipStore interface {
	// GetMembership retrieves the membership record for a
	// (tenant, principal) pair.
	// Returns ErrMembershipNotFound if no record exists.
	GetMembership(ctx context.Context, tenantID, principalID string) (*Membership, error)
}

// PlanStore provides read-only plan catalog lookups.
type PlanStore interface {
	// GetPlan retrieves a plan definition by ID.
	// Returns ErrPlanNotFound if the plan doesn't exist.
	GetPlan(ctx context.Context, id string) (*Plan, error)
}
