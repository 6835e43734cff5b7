package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want localhost default", cfg.Server.HTTPAddr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.RateLimit.Window != "1m" || cfg.RateLimit.MaxHits != 100 {
		t.Errorf("limiter defaults = (%q, %d), want (1m, 100)", cfg.RateLimit.Window, cfg.RateLimit.MaxHits)
	}
	if cfg.RateLimit.CountPolicy != "all" || cfg.RateLimit.KeyStrategy != "principal" {
		t.Errorf("limiter policies = (%q, %q), want (all, principal)",
			cfg.RateLimit.CountPolicy, cfg.RateLimit.KeyStrategy)
	}
	if cfg.Store.Kind != "memory" {
		t.Errorf("Store.Kind = %q, want memory", cfg.Store.Kind)
	}
	if cfg.Cache.TTL != "5m" || cfg.Cache.CleanupInterval != "1m" {
		t.Errorf("cache defaults = (%q, %q), want (5m, 1m)", cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		var cfg Config
		cfg.SetDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults pass", mutate: func(*Config) {}},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.RateLimit.Window = "soon" },
			wantErr: "positive duration",
		},
		{
			name:    "bad store kind",
			mutate:  func(c *Config) { c.Store.Kind = "postgres" },
			wantErr: "must be one of",
		},
		{
			name:    "bad count policy on route override",
			mutate:  func(c *Config) { c.RateLimit.Routes = map[string]RouteLimitConfig{"login": {CountPolicy: "sometimes"}} },
			wantErr: "must be one of",
		},
		{
			name: "key hash without prefix",
			mutate: func(c *Config) {
				c.Auth.APIKeys = []APIKeyConfig{{KeyHash: "deadbeef", Principal: "alice"}}
			},
			wantErr: `must start with "sha256:"`,
		},
		{
			name: "key without principal",
			mutate: func(c *Config) {
				c.Auth.APIKeys = []APIKeyConfig{{KeyHash: "sha256:deadbeef"}}
			},
			wantErr: "required",
		},
		{
			name: "duplicate key hash",
			mutate: func(c *Config) {
				c.Auth.APIKeys = []APIKeyConfig{
					{KeyHash: "sha256:deadbeef", Principal: "alice"},
					{KeyHash: "sha256:deadbeef", Principal: "bob"},
				}
			},
			wantErr: "already mapped",
		},
		{
			name: "route without leading slash",
			mutate: func(c *Config) {
				c.Routes = []RouteConfig{{Name: "projects", Path: "v1/projects"}}
			},
			wantErr: `must start with "/"`,
		},
		{
			name: "duplicate route name",
			mutate: func(c *Config) {
				c.Routes = []RouteConfig{
					{Name: "projects", Path: "/v1/projects"},
					{Name: "projects", Path: "/v1/other"},
				}
			},
			wantErr: "duplicate name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil error, want failure")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestRouteLimit(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()
	cfg.RateLimit.Routes = map[string]RouteLimitConfig{
		"login": {Window: "30s", MaxHits: 5, KeyStrategy: "ip"},
	}

	login := cfg.RateLimit.RouteLimit("login")
	if login.Window != "30s" || login.MaxHits != 5 {
		t.Errorf("login limit = (%q, %d), want (30s, 5)", login.Window, login.MaxHits)
	}
	if login.CountPolicy != "all" {
		t.Errorf("login count policy = %q, want inherited all", login.CountPolicy)
	}
	if login.KeyStrategy != "ip" {
		t.Errorf("login key strategy = %q, want ip", login.KeyStrategy)
	}

	other := cfg.RateLimit.RouteLimit("unknown")
	if other.Window != "1m" || other.MaxHits != 100 {
		t.Errorf("unknown route = (%q, %d), want global defaults", other.Window, other.MaxHits)
	}

	if got := login.WindowDuration(); got != 30*time.Second {
		t.Errorf("WindowDuration() = %v, want 30s", got)
	}
}

func TestCacheDurations(t *testing.T) {
	t.Parallel()

	cache := CacheConfig{TTL: "10m", CleanupInterval: "2m"}
	if cache.TTLDuration() != 10*time.Minute {
		t.Errorf("TTLDuration() = %v, want 10m", cache.TTLDuration())
	}
	if cache.CleanupDuration() != 2*time.Minute {
		t.Errorf("CleanupDuration() = %v, want 2m", cache.CleanupDuration())
	}

	var zero CacheConfig
	if zero.TTLDuration() != 5*time.Minute || zero.CleanupDuration() != time.Minute {
		t.Error("zero values must fall back to defaults")
	}
}

func TestPrincipalTable(t *testing.T) {
	t.Parallel()

	cfg := Config{Auth: AuthConfig{APIKeys: []APIKeyConfig{
		{KeyHash: "sha256:deadbeef", Principal: "alice"},
	}}}

	table := cfg.PrincipalTable()
	if table["deadbeef"] != "alice" {
		t.Errorf("table = %v, want deadbeef -> alice", table)
	}
}

// Not parallel: viper state is global.
func TestLoadConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "gatewarden.yaml")
	content := `
server:
  http_addr: "127.0.0.1:9090"
  legacy_rate_limit_headers: true
rate_limit:
  max_hits: 50
  routes:
    login:
      window: 30s
      max_hits: 5
      key_strategy: ip
store:
  kind: sqlite
  path: /tmp/gatewarden-test
catalog:
  file: catalog.yaml
auth:
  api_keys:
    - key_hash: "sha256:deadbeef"
      principal: alice
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	InitViper(path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("HTTPAddr = %q, want 127.0.0.1:9090", cfg.Server.HTTPAddr)
	}
	if !cfg.Server.LegacyRateLimitHeaders {
		t.Error("LegacyRateLimitHeaders = false, want true")
	}
	if cfg.RateLimit.MaxHits != 50 {
		t.Errorf("MaxHits = %d, want 50", cfg.RateLimit.MaxHits)
	}
	if cfg.RateLimit.Window != "1m" {
		t.Errorf("Window = %q, want defaulted 1m", cfg.RateLimit.Window)
	}
	if cfg.Store.Kind != "sqlite" {
		t.Errorf("Store.Kind = %q, want sqlite", cfg.Store.Kind)
	}
	login := cfg.RateLimit.RouteLimit("login")
	if login.MaxHits != 5 || login.KeyStrategy != "ip" {
		t.Errorf("login override = %+v, want max_hits 5 key_strategy ip", login)
	}
	if ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q, want %q", ConfigFileUsed(), path)
	}
}

// Not parallel: viper state is global.
func TestLoadConfig_InvalidFailsLoud(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "gatewarden.yaml")
	if err := os.WriteFile(path, []byte("store:\n  kind: postgres\n"), 0600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	InitViper(path)
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() = nil error for invalid store kind")
	}
}
