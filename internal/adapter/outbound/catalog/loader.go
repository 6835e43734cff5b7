// Package catalog loads the tenant/membership/plan catalog from a YAML
// file. The plan catalog is external configuration data, not code.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gatewarden/gatewarden/internal/domain/tenant"
)

// File is the parsed form of catalog.yaml.
type File struct {
	Plans       []PlanEntry       `yaml:"plans"`
	Tenants     []TenantEntry     `yaml:"tenants"`
	Memberships []MembershipEntry `yaml:"memberships"`
}

// PlanEntry defines a plan in the catalog file.
type PlanEntry struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Limits   map[string]int64 `yaml:"limits"`
	Features map[string]bool  `yaml:"features"`
}

// TenantEntry defines a tenant in the catalog file.
type TenantEntry struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Status string `yaml:"status"`
	Plan   string `yaml:"plan"`
}

// MembershipEntry defines a membership in the catalog file.
type MembershipEntry struct {
	Tenant    string `yaml:"tenant"`
	Principal string `yaml:"principal"`
	Role      string `yaml:"role"`
	Active    *bool  `yaml:"active"`
}

// Catalog holds domain records parsed from a catalog file.
type Catalog struct {
	Plans       []tenant.Plan
	Tenants     []tenant.Tenant
	Memberships []tenant.Membership
}

// Load reads and validates the catalog file at path.
//
// Validation enforces the internal consistency the loader relies on: every
// tenant must reference a plan defined in the same file, so a dangling plan
// can only arise from out-of-band catalog edits.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	return file.toCatalog()
}

// toCatalog converts file entries to domain records, validating as it goes.
func (f *File) toCatalog() (*Catalog, error) {
	cat := &Catalog{}

	planIDs := make(map[string]struct{}, len(f.Plans))
	for i, p := range f.Plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan %d: id is required", i)
		}
		if _, dup := planIDs[p.ID]; dup {
			return nil, fmt.Errorf("plan %q: duplicate id", p.ID)
		}
		planIDs[p.ID] = struct{}{}
		cat.Plans = append(cat.Plans, tenant.Plan{
			ID:       p.ID,
			Name:     p.Name,
			Limits:   p.Limits,
			Features: p.Features,
		})
	}

	tenantIDs := make(map[string]struct{}, len(f.Tenants))
	for i, te := range f.Tenants {
		if te.ID == "" {
			return nil, fmt.Errorf("tenant %d: id is required", i)
		}
		if _, dup := tenantIDs[te.ID]; dup {
			return nil, fmt.Errorf("tenant %q: duplicate id", te.ID)
		}
		tenantIDs[te.ID] = struct{}{}

		status := tenant.Status(te.Status)
		if te.Status == "" {
			status = tenant.StatusActive
		}
		if !status.IsValid() {
			return nil, fmt.Errorf("tenant %q: unknown status %q", te.ID, te.Status)
		}
		if _, ok := planIDs[te.Plan]; !ok {
			return nil, fmt.Errorf("tenant %q: references undefined plan %q", te.ID, te.Plan)
		}
		cat.Tenants = append(cat.Tenants, tenant.Tenant{
			ID:     te.ID,
			Name:   te.Name,
			Status: status,
			PlanID: te.Plan,
		})
	}

	for i, m := range f.Memberships {
		if m.Tenant == "" || m.Principal == "" {
			return nil, fmt.Errorf("membership %d: tenant and principal are required", i)
		}
		if _, ok := tenantIDs[m.Tenant]; !ok {
			return nil, fmt.Errorf("membership %d: references undefined tenant %q", i, m.Tenant)
		}
		active := true
		if m.Active != nil {
			active = *m.Active
		}
		cat.Memberships = append(cat.Memberships, tenant.Membership{
			TenantID:    m.Tenant,
			PrincipalID: m.Principal,
			Role:        m.Role,
			Active:      active,
		})
	}

	return cat, nil
}
