package quota

import (
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/internal/domain/tenant"
)

func testContext() *tenant.Context {
	return &tenant.Context{
		TenantID:     "acme",
		TenantStatus: tenant.StatusActive,
		Membership:   tenant.Membership{TenantID: "acme", PrincipalID: "alice", Role: "member", Active: true},
		Limits: map[string]int64{
			"projects": 10,
			"seats":    tenant.Unlimited,
		},
		Features: map[string]bool{
			"webhooks":          true,
			"advancedReporting": false,
		},
		ResolvedAt: time.Now(),
	}
}

func TestCheckLimit_Unlimited(t *testing.T) {
	t.Parallel()

	tc := testContext()
	for _, usage := range []int64{0, 1, 1 << 40} {
		d := CheckLimit(tc, "seats", usage, LimitOptions{})
		if !d.Allowed {
			t.Errorf("usage %d: denied, unlimited limit must always allow", usage)
		}
		if d.Limit != tenant.Unlimited {
			t.Errorf("Limit = %d, want %d", d.Limit, tenant.Unlimited)
		}
	}
}

func TestCheckLimit_Bands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		usage    int64
		allowed  bool
		wantBand Band
	}{
		{"well below limit", 0, true, BandOK},
		{"just under warning", 6, true, BandOK},
		{"warning from 80 percent", 7, true, BandWarning},
		{"at limit", 9, true, BandWarning},
		{"beyond limit", 10, false, BandExceeded},
	}

	tc := testContext()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := CheckLimit(tc, "projects", tt.usage, LimitOptions{})
			if d.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", d.Allowed, tt.allowed)
			}
			if d.Band != tt.wantBand {
				t.Errorf("Band = %q, want %q", d.Band, tt.wantBand)
			}
		})
	}
}

func TestCheckLimit_DenyAtLimitWithoutOverage(t *testing.T) {
	t.Parallel()

	tc := testContext()
	d := CheckLimit(tc, "projects", 10, LimitOptions{})
	if d.Allowed {
		t.Error("next unit at the limit without overage must be denied")
	}
	if d.Reason == "" {
		t.Error("denial must carry a reason for client display")
	}
	if d.CurrentUsage != 10 || d.Limit != 10 {
		t.Errorf("numeric detail = (%d, %d), want (10, 10)", d.CurrentUsage, d.Limit)
	}
}

func TestCheckLimit_OverageCeiling(t *testing.T) {
	t.Parallel()

	tc := testContext()
	opts := LimitOptions{OverageCeiling: 3}

	// Up to limit + ceiling allows, with the overage reported.
	d := CheckLimit(tc, "projects", 11, opts)
	if !d.Allowed {
		t.Fatal("usage within the overage ceiling must be allowed")
	}
	if d.OverageUsed != 2 {
		t.Errorf("OverageUsed = %d, want 2", d.OverageUsed)
	}
	if d.Band != BandExceeded {
		t.Errorf("Band = %q, want %q while in overage", d.Band, BandExceeded)
	}

	// One past limit + ceiling denies.
	d = CheckLimit(tc, "projects", 13, opts)
	if d.Allowed {
		t.Error("usage beyond limit + overage ceiling must be denied")
	}
}

func TestCheckLimit_RequestedIncrement(t *testing.T) {
	t.Parallel()

	tc := testContext()
	if d := CheckLimit(tc, "projects", 5, LimitOptions{RequestedIncrement: 5}); !d.Allowed {
		t.Error("increment filling the limit exactly must be allowed")
	}
	if d := CheckLimit(tc, "projects", 5, LimitOptions{RequestedIncrement: 6}); d.Allowed {
		t.Error("increment pushing past the limit must be denied")
	}
}

func TestCheckLimit_UnknownLimitFailsClosed(t *testing.T) {
	t.Parallel()

	tc := testContext()
	d := CheckLimit(tc, "doesNotExist", 0, LimitOptions{})
	if d.Allowed {
		t.Error("unknown limit name must be denied, not treated as unlimited")
	}
}

func TestCheckFeature(t *testing.T) {
	t.Parallel()

	tc := testContext()
	if !CheckFeature(tc, "webhooks") {
		t.Error(`CheckFeature("webhooks") = false, want true`)
	}
	if CheckFeature(tc, "advancedReporting") {
		t.Error(`CheckFeature("advancedReporting") = true, want false`)
	}
	if CheckFeature(tc, "doesNotExist") {
		t.Error("unknown feature must be disabled, never an error")
	}
}
