package memory

import (
	"context"
	"sync"

	"github.com/gatewarden/gatewarden/internal/domain/tenant"
)

// CatalogStore implements the tenant, membership and plan read ports over
// in-memory maps. It serves catalogs loaded from configuration files and
// doubles as the test double for the loader.
// Thread-safe for concurrent reads and replacement.
type CatalogStore struct {
	mu          sync.RWMutex
	tenants     map[string]tenant.Tenant
	memberships map[string]tenant.Membership
	plans       map[string]tenant.Plan
}

// NewCatalogStore creates an empty catalog store.
func NewCatalogStore() *CatalogStore {
	s := &CatalogStore{}
	s.Replace(nil, nil, nil)
	return s
}

// Replace swaps the entire catalog contents atomically.
// Used at startup and on catalog reload.
func (s *CatalogStore) Replace(tenants []tenant.Tenant, memberships []tenant.Membership, plans []tenant.Plan) {
	tm := make(map[string]tenant.Tenant, len(tenants))
	for _, t := range tenants {
		tm[t.ID] = t
	}
	mm := make(map[string]tenant.Membership, len(memberships))
	for _, m := range memberships {
		mm[membershipKey(m.TenantID, m.PrincipalID)] = m
	}
	pm := make(map[string]tenant.Plan, len(plans))
	for _, p := range plans {
		pm[p.ID] = p
	}

	s.mu.Lock()
	s.tenants, s.memberships, s.plans = tm, mm, pm
	s.mu.Unlock()
}

func membershipKey(tenantID, principalID string) string {
	return tenantID + "\x00" + principalID
}

// GetTenant retrieves a tenant by ID.
func (s *CatalogStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return &t, nil
}

// GetMembership retrieves the membership for a (tenant, principal) pair.
func (s *CatalogStore) GetMembership(_ context.Context, tenantID, principalID string) (*tenant.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[membershipKey(tenantID, principalID)]
	if !ok {
		return nil, tenant.ErrMembershipNotFound
	}
	return &m, nil
}

// GetPlan retrieves a plan definition by ID.
func (s *CatalogStore) GetPlan(_ context.Context, id string) (*tenant.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, tenant.ErrPlanNotFound
	}
	return &p, nil
}

// Compile-time interface verification.
var (
	_ tenant.TenantStore     = (*CatalogStore)(nil)
	_ tenant.MembershipStore = (*CatalogStore)(nil)
	_ tenant.PlanStore       = (*CatalogStore)(nil)
)
