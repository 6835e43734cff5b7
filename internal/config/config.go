// Package config provides configuration types for gatewarden.
package config

import (
	"time"
)

// Config is the top-level configuration for gatewarden.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// RateLimit configures the windowed rate limiter: global defaults plus
	// per-route overrides.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Store configures where rate limit counters live.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Cache configures the tenant context cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Catalog points at the tenant/membership/plan catalog file.
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`

	// Auth configures the API key table.
	// Optional: when empty, all requests are anonymous and rate limiting
	// keys on the client IP.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Routes defines the protected routes the server exposes.
	// Optional: when empty, a single /v1/ping route is mounted so the
	// pipeline can be exercised out of the box.
	Routes []RouteConfig `yaml:"routes" mapstructure:"routes" validate:"omitempty,dive"`
}

// RouteConfig defines one protected route and its admission requirements.
// Limiter overrides for the route are looked up by Name in rate_limit.routes.
type RouteConfig struct {
	// Name identifies the route in limiter overrides and metrics.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Path is the mux pattern the route is mounted at (e.g., "/v1/projects").
	Path string `yaml:"path" mapstructure:"path" validate:"required,startswith=/"`

	// Feature gates the route on the named plan feature when set.
	Feature string `yaml:"feature" mapstructure:"feature"`

	// Limit checks the named plan limit when set.
	Limit string `yaml:"limit" mapstructure:"limit"`

	// UsageIncrement is the units one request consumes (default 1).
	UsageIncrement int64 `yaml:"usage_increment" mapstructure:"usage_increment" validate:"omitempty,min=1"`

	// OverageCeiling permits overage up to limit+N when positive.
	OverageCeiling int64 `yaml:"overage_ceiling" mapstructure:"overage_ceiling" validate:"omitempty,min=1"`

	// Degrade serves a reduced response on quota denial instead of
	// rejecting the request.
	Degrade bool `yaml:"degrade" mapstructure:"degrade"`
}

// ServerConfig configures the HTTP server.
// TLS is intentionally out of scope; terminate it at a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LegacyRateLimitHeaders duplicates the RateLimit-* response headers
	// under the X-RateLimit-* names for older clients.
	LegacyRateLimitHeaders bool `yaml:"legacy_rate_limit_headers" mapstructure:"legacy_rate_limit_headers"`
}

// RateLimitConfig holds the limiter defaults and per-route overrides.
type RateLimitConfig struct {
	// Window is the fixed window length (e.g., "1m", "30s").
	// Defaults to "1m".
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`

	// MaxHits is the admission ceiling per window. Defaults to 100.
	MaxHits int64 `yaml:"max_hits" mapstructure:"max_hits" validate:"omitempty,min=1"`

	// CountPolicy selects which outcomes count against the window.
	// Valid values: "all", "skip_successful", "skip_failed".
	// Defaults to "all".
	CountPolicy string `yaml:"count_policy" mapstructure:"count_policy" validate:"omitempty,oneof=all skip_successful skip_failed"`

	// KeyStrategy selects the limiter key: "principal" (fall back to IP for
	// anonymous callers) or "ip" (always the address). Defaults to "principal".
	KeyStrategy string `yaml:"key_strategy" mapstructure:"key_strategy" validate:"omitempty,oneof=principal ip"`

	// Routes overrides any of the above per route name. Unset fields
	// inherit the global defaults.
	Routes map[string]RouteLimitConfig `yaml:"routes" mapstructure:"routes" validate:"omitempty,dive"`
}

// RouteLimitConfig overrides limiter parameters for one route.
type RouteLimitConfig struct {
	Window      string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`
	MaxHits     int64  `yaml:"max_hits" mapstructure:"max_hits" validate:"omitempty,min=1"`
	CountPolicy string `yaml:"count_policy" mapstructure:"count_policy" validate:"omitempty,oneof=all skip_successful skip_failed"`
	KeyStrategy string `yaml:"key_strategy" mapstructure:"key_strategy" validate:"omitempty,oneof=principal ip"`
}

// StoreConfig selects the counter store backend.
type StoreConfig struct {
	// Kind is "memory" (counters reset on restart) or "sqlite" (durable).
	// Defaults to "memory".
	Kind string `yaml:"kind" mapstructure:"kind" validate:"omitempty,oneof=memory sqlite"`

	// Path is the data directory for the sqlite backend.
	// Defaults to "./data".
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig configures the tenant context cache.
type CacheConfig struct {
	// TTL is how long a resolved context stays fresh (e.g., "5m").
	// Defaults to "5m".
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`

	// CleanupInterval is how often expired entries are swept (e.g., "1m").
	// Defaults to "1m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`
}

// CatalogConfig points at the catalog file.
type CatalogConfig struct {
	// File is the path to catalog.yaml. Required by the serve command.
	File string `yaml:"file" mapstructure:"file"`
}

// AuthConfig configures file-based API keys.
type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig maps a hashed API key to a principal.
type APIKeyConfig struct {
	// KeyHash is "sha256:<hex>" of the raw key. Generate with `gatewarden check-key`.
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,startswith=sha256:"`

	// Principal is the caller identity the key resolves to.
	Principal string `yaml:"principal" mapstructure:"principal" validate:"required"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only. Users who need network access must
	// explicitly set http_addr: ":8080" or "0.0.0.0:8080".
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "1m"
	}
	if c.RateLimit.MaxHits == 0 {
		c.RateLimit.MaxHits = 100
	}
	if c.RateLimit.CountPolicy == "" {
		c.RateLimit.CountPolicy = "all"
	}
	if c.RateLimit.KeyStrategy == "" {
		c.RateLimit.KeyStrategy = "principal"
	}

	if c.Store.Kind == "" {
		c.Store.Kind = "memory"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data"
	}

	if c.Cache.TTL == "" {
		c.Cache.TTL = "5m"
	}
	if c.Cache.CleanupInterval == "" {
		c.Cache.CleanupInterval = "1m"
	}
}

// RouteLimit returns the limiter parameters for route with global defaults
// filled into unset override fields. The empty route name returns the
// defaults themselves.
func (c *RateLimitConfig) RouteLimit(route string) RouteLimitConfig {
	resolved := RouteLimitConfig{
		Window:      c.Window,
		MaxHits:     c.MaxHits,
		CountPolicy: c.CountPolicy,
		KeyStrategy: c.KeyStrategy,
	}
	override, ok := c.Routes[route]
	if !ok {
		return resolved
	}
	if override.Window != "" {
		resolved.Window = override.Window
	}
	if override.MaxHits != 0 {
		resolved.MaxHits = override.MaxHits
	}
	if override.CountPolicy != "" {
		resolved.CountPolicy = override.CountPolicy
	}
	if override.KeyStrategy != "" {
		resolved.KeyStrategy = override.KeyStrategy
	}
	return resolved
}

// WindowDuration parses the window. Call after Validate; unparseable values
// fall back to one minute.
func (r RouteLimitConfig) WindowDuration() time.Duration {
	return parseDurationOr(r.Window, time.Minute)
}

// TTLDuration parses the cache TTL with a 5 minute fallback.
func (c *CacheConfig) TTLDuration() time.Duration {
	return parseDurationOr(c.TTL, 5*time.Minute)
}

// CleanupDuration parses the cleanup interval with a 1 minute fallback.
func (c *CacheConfig) CleanupDuration() time.Duration {
	return parseDurationOr(c.CleanupInterval, time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
