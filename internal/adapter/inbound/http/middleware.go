// Package http provides the inbound HTTP adapter for the admission pipeline.
package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/ctxkey"
)

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using ctxkey.RequestIDKey.
// An enriched logger with a request_id field is stored using ctxkey.LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, enrichedLogger)

			// Echo the ID so clients can correlate.
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RealIPMiddleware extracts the client's real IP address for rate limiting.
// It checks X-Forwarded-For and X-Real-IP headers (for reverse proxy support),
// falling back to r.RemoteAddr if no proxy headers are present.
// Only the first IP in X-Forwarded-For is trusted to avoid spoofing.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), ctxkey.RemoteIPKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RemoteIPFromContext returns the client IP stored by RealIPMiddleware,
// empty if the middleware did not run.
func RemoteIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxkey.RemoteIPKey{}).(string)
	return ip
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	// X-Forwarded-For: client, proxy1, proxy2. Trust only the first entry.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// APIKeyMiddleware maps a bearer API key to a principal ID using a table of
// SHA-256 key hashes. Raw keys never appear in configuration or logs.
// Requests without a recognized key continue anonymously; the rate limiter
// then keys on the client IP instead of a principal.
func APIKeyMiddleware(principalByHash map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey := strings.TrimPrefix(auth, "Bearer ")
				if principal, ok := principalByHash[HashAPIKey(apiKey)]; ok {
					ctx := context.WithValue(r.Context(), ctxkey.PrincipalKey{}, principal)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext returns the principal stored by APIKeyMiddleware,
// empty for anonymous requests.
func PrincipalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(ctxkey.PrincipalKey{}).(string)
	return principal
}

// HashAPIKey returns the hex SHA-256 digest of an API key. The same digest
// form is used in the configuration key table and by the check-key command.
func HashAPIKey(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])
}
