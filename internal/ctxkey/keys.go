// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Used by HTTP middleware to store and retrieve the logger with request_id fields.
type LoggerKey struct{}

// RequestIDKey is the context key type for the request correlation ID.
type RequestIDKey struct{}

// PrincipalKey is the context key type for the authenticated principal ID.
type PrincipalKey struct{}

// RemoteIPKey is the context key type for the client's real IP address.
type RemoteIPKey struct{}

// RestrictionKey is the context key type for the degraded-admission
// annotation. Handlers read it to serve a reduced response instead of the
// full one.
type RestrictionKey struct{}
