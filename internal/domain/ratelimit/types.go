// Package ratelimit provides windowed rate limiting domain types.
package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CountPolicy controls whether a request is counted against the window
// after its outcome is known.
type CountPolicy string

const (
	// CountAll counts every request, regardless of outcome.
	CountAll CountPolicy = "all"

	// SkipSuccessful refunds the hit when the request succeeds.
	// Useful for login-style endpoints where only failures should burn budget.
	SkipSuccessful CountPolicy = "skip_successful"

	// SkipFailed refunds the hit when the request fails.
	SkipFailed CountPolicy = "skip_failed"
)

// IsValid returns true if the policy is a known valid policy.
func (p CountPolicy) IsValid() bool {
	switch p {
	case CountAll, SkipSuccessful, SkipFailed:
		return true
	default:
		return false
	}
}

// Config defines the rate limiting parameters for a key class.
type Config struct {
	// Window is the fixed time window for the limit.
	// Window boundaries are deterministic functions of wall-clock time,
	// so all replicas converge on the same window without coordination.
	Window time.Duration

	// MaxHits is the maximum number of counted requests per window.
	MaxHits int64

	// CountPolicy controls post-hoc refunding of hits.
	CountPolicy CountPolicy
}

// AdmitResult contains the result of an admission check.
type AdmitResult struct {
	// Admitted indicates whether the request may proceed.
	Admitted bool

	// Remaining is the number of requests left in the current window.
	// Zero when the request was rejected.
	Remaining int64

	// Limit is the configured ceiling, echoed for header emission.
	Limit int64

	// ResetAt is when the current window ends and the counter resets.
	ResetAt time.Time

	// RetryAfter is the duration until the window resets.
	// Only meaningful when Admitted is false.
	RetryAfter time.Duration

	// FailedOpen is true when the counter store was unavailable and the
	// request was admitted without counting.
	FailedOpen bool
}

// Counter is the persisted per-key window counter.
// Invariant: HitCount <= TotalCount. Both conceptually reset to zero when
// a request arrives after WindowEnd; stores implement the reset as a
// merge-upsert so concurrent first-writers converge.
type Counter struct {
	Key           string
	WindowStart   time.Time
	WindowEnd     time.Time
	HitCount      int64
	TotalCount    int64
	LastRequestAt time.Time
}

// ErrCounterNotFound is returned by CounterStore.Get for unknown keys.
var ErrCounterNotFound = errors.New("rate limit counter not found")

// KeyType identifies the type of rate limit key.
type KeyType string

const (
	// KeyTypeIP is for IP-based rate limiting of unauthenticated callers.
	KeyTypeIP KeyType = "ip"

	// KeyTypePrincipal is for principal-based rate limiting.
	KeyTypePrincipal KeyType = "principal"
)

// keyPrefix is the base prefix for all rate limit keys.
const keyPrefix = "ratelimit"

// FormatKey returns a structured rate limit key.
// The caller value is digested with xxhash so raw principal IDs and IP
// addresses never appear verbatim as storage keys.
// Format: "ratelimit:{type}:{digest}"
func FormatKey(keyType KeyType, value string) string {
	return fmt.Sprintf("%s:%s:%016x", keyPrefix, keyType, xxhash.Sum64String(value))
}

// FormatRouteKey returns a rate limit key namespaced by route so that, for
// example, "login" and general traffic from the same caller do not share a
// bucket.
// Format: "ratelimit:{route}:{type}:{digest}"
func FormatRouteKey(route string, keyType KeyType, value string) string {
	if route == "" {
		return FormatKey(keyType, value)
	}
	return fmt.Sprintf("%s:%s:%s:%016x", keyPrefix, route, keyType, xxhash.Sum64String(value))
}
