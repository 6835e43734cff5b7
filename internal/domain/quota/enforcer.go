// Package quota provides pure, stateless quota and feature-gate evaluation
// over an already-resolved tenant context. No function in this package
// performs I/O.
package quota

import (
	"fmt"

	"github.com/gatewarden/gatewarden/internal/domain/tenant"
)

// Band classifies usage relative to the limit for client display.
type Band string

const (
	// BandOK is usage below 80% of the limit.
	BandOK Band = "ok"

	// BandWarning is usage from 80% up to the limit.
	BandWarning Band = "warning"

	// BandExceeded is usage beyond the limit.
	BandExceeded Band = "exceeded"
)

// warningThresholdPercent is where the warning band begins.
const warningThresholdPercent = 80

// Decision is the outcome of a limit check. Produced fresh per check,
// never persisted.
type Decision struct {
	// Allowed indicates whether the requested increment fits.
	Allowed bool

	// LimitName is the limit that was checked.
	LimitName string

	// CurrentUsage is the usage the check was evaluated against.
	CurrentUsage int64

	// Limit is the plan ceiling. tenant.Unlimited means no ceiling.
	Limit int64

	// OverageUsed is how many units beyond the nominal limit this
	// decision consumes. Zero unless overage was requested and needed.
	OverageUsed int64

	// Band classifies the resulting usage for client display.
	Band Band

	// Reason is a human-readable explanation for denials.
	Reason string
}

// LimitOptions tunes a CheckLimit call.
type LimitOptions struct {
	// RequestedIncrement is how many units the operation consumes.
	// Zero is treated as one.
	RequestedIncrement int64

	// OverageCeiling, when positive, explicitly permits usage up to
	// limit + OverageCeiling. Overage is always caller-opt-in; an absent
	// ceiling means no overage.
	OverageCeiling int64
}

// CheckLimit evaluates the named numeric limit against the tenant context.
//
// A limit of tenant.Unlimited (-1) always allows. A limit name the plan
// does not define is treated as a ceiling of zero (fail closed), matching
// the feature-gate behavior for unknown names.
func CheckLimit(tc *tenant.Context, limitName string, currentUsage int64, opts LimitOptions) Decision {
	increment := opts.RequestedIncrement
	if increment <= 0 {
		increment = 1
	}

	limit, defined := tc.Limit(limitName)
	if !defined {
		limit = 0
	}

	if limit == tenant.Unlimited {
		return Decision{
			Allowed:      true,
			LimitName:    limitName,
			CurrentUsage: currentUsage,
			Limit:        tenant.Unlimited,
			Band:         BandOK,
		}
	}

	projected := currentUsage + increment
	if projected <= limit {
		return Decision{
			Allowed:      true,
			LimitName:    limitName,
			CurrentUsage: currentUsage,
			Limit:        limit,
			Band:         band(projected, limit),
		}
	}

	if opts.OverageCeiling > 0 && projected <= limit+opts.OverageCeiling {
		return Decision{
			Allowed:      true,
			LimitName:    limitName,
			CurrentUsage: currentUsage,
			Limit:        limit,
			OverageUsed:  projected - limit,
			Band:         BandExceeded,
		}
	}

	return Decision{
		Allowed:      false,
		LimitName:    limitName,
		CurrentUsage: currentUsage,
		Limit:        limit,
		Band:         BandExceeded,
		Reason: fmt.Sprintf("limit %q exceeded: %d used of %d, requested %d more",
			limitName, currentUsage, limit, increment),
	}
}

// CheckFeature reports whether the named boolean feature is enabled for
// the tenant. Unknown feature names are disabled, never an error.
func CheckFeature(tc *tenant.Context, featureName string) bool {
	return tc.Feature(featureName)
}

// band classifies projected usage against the limit.
func band(usage, limit int64) Band {
	switch {
	case limit <= 0 || usage > limit:
		return BandExceeded
	case usage*100 >= limit*warningThresholdPercent:
		return BandWarning
	default:
		return BandOK
	}
}
