package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for gatewarden.yaml/.yml in standard
// locations. The search requires an explicit YAML extension to avoid matching
// the binary itself, which Viper's built-in SetConfigName would match.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file in any standard location. Set name/type without
		// search paths so ReadInConfig returns ConfigFileNotFoundError,
		// which callers handle gracefully.
		viper.SetConfigName("gatewarden")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: GATEWARDEN_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("GATEWARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a gatewarden config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".gatewarden"),
		"/etc/gatewarden",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "gatewarden"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable support.
// Example: GATEWARDEN_RATE_LIMIT_MAX_HITS overrides rate_limit.max_hits
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.legacy_rate_limit_headers")

	_ = viper.BindEnv("rate_limit.window")
	_ = viper.BindEnv("rate_limit.max_hits")
	_ = viper.BindEnv("rate_limit.count_policy")
	_ = viper.BindEnv("rate_limit.key_strategy")
	// Note: rate_limit.routes is a map, complex to override via env.
	// Users should use the config file for per-route overrides.

	_ = viper.BindEnv("store.kind")
	_ = viper.BindEnv("store.path")

	_ = viper.BindEnv("cache.ttl")
	_ = viper.BindEnv("cache.cleanup_interval")

	_ = viper.BindEnv("catalog.file")

	// Note: auth.api_keys is an array; use the config file.
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// PrincipalTable converts the API key list into the hash-to-principal map
// consumed by the HTTP middleware, stripping the "sha256:" prefix.
func (c *Config) PrincipalTable() map[string]string {
	table := make(map[string]string, len(c.Auth.APIKeys))
	for _, key := range c.Auth.APIKeys {
		table[strings.TrimPrefix(key.KeyHash, "sha256:")] = key.Principal
	}
	return table
}
