// Package tenant contains the domain types and logic for tenant context
// resolution.
package tenant

import (
	"time"
)

// Status represents the lifecycle status of a tenant.
type Status string

const (
	// StatusActive is a tenant in good standing.
	StatusActive Status = "active"

	// StatusSuspended is a tenant whose access is blocked but whose
	// context still resolves, so callers can distinguish "suspended"
	// from "not found".
	StatusSuspended Status = "suspended"
)

// IsValid returns true if the status is a known valid status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusSuspended:
		return true
	default:
		return false
	}
}

// Tenant is an isolated customer account.
type Tenant struct {
	// ID is the unique identifier for this tenant.
	ID string
	// Name is the display name for this tenant.
	Name string
	// Status is the lifecycle status.
	Status Status
	// PlanID references the plan this tenant is subscribed to.
	// The plan catalog is expected to be internally consistent: a
	// dangling PlanID is a configuration error, not a denial.
	PlanID string
}

// Membership is the relationship of a principal within a tenant.
type Membership struct {
	TenantID    string
	PrincipalID string
	// Role is the principal's role within the tenant.
	Role string
	// Active indicates whether the membership is currently usable.
	Active bool
}

// Unlimited is the sentinel limit value meaning "no ceiling".
const Unlimited int64 = -1

// Plan is a named bundle of numeric limits and boolean features.
type Plan struct {
	ID   string
	Name string
	// Limits maps limit names to ceilings. Unlimited (-1) means no ceiling.
	Limits map[string]int64
	// Features maps feature names to their enabled state.
	Features map[string]bool
}

// Context is the immutable, time-bounded resolution of
// (principal, tenant) into entitlements. It is created by the Loader,
// cached by the ContextCache, and never mutated after creation — a cache
// entry is replaced, not edited, on refresh. It may be safely shared
// read-only across concurrent request handlers.
type Context struct {
	TenantID     string
	TenantStatus Status
	Membership   Membership
	// Limits is the plan's limit table, including derived aliases.
	Limits map[string]int64
	// Features is the plan's feature table, including derived aliases.
	Features map[string]bool
	// ResolvedAt is when the Loader assembled this context.
	ResolvedAt time.Time
}

// Suspended reports whether the tenant behind this context is suspended.
func (c *Context) Suspended() bool {
	return c.TenantStatus == StatusSuspended
}

// Limit returns the ceiling for the named limit and whether it is defined.
func (c *Context) Limit(name string) (int64, bool) {
	v, ok := c.Limits[name]
	return v, ok
}

// Feature returns the enabled state of the named feature.
// Unknown feature names are disabled, never an error.
func (c *Context) Feature(name string) bool {
	return c.Features[name]
}
