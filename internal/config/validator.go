package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers gatewarden-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates Go duration strings like "30s" or "1m".
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDuration accepts positive time.ParseDuration strings.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateKeyHashUniqueness(); err != nil {
		return err
	}

	if err := c.validateRouteUniqueness(); err != nil {
		return err
	}

	return nil
}

// validateRouteUniqueness rejects two routes sharing a name or mux pattern.
func (c *Config) validateRouteUniqueness() error {
	names := make(map[string]struct{}, len(c.Routes))
	paths := make(map[string]struct{}, len(c.Routes))
	for i, route := range c.Routes {
		if _, dup := names[route.Name]; dup {
			return fmt.Errorf("routes[%d]: duplicate name %q", i, route.Name)
		}
		if _, dup := paths[route.Path]; dup {
			return fmt.Errorf("routes[%d]: duplicate path %q", i, route.Path)
		}
		names[route.Name] = struct{}{}
		paths[route.Path] = struct{}{}
	}
	return nil
}

// validateKeyHashUniqueness rejects two API keys with the same hash, which
// would silently resolve every request to whichever principal sorts last.
func (c *Config) validateKeyHashUniqueness() error {
	seen := make(map[string]string, len(c.Auth.APIKeys))
	for i, key := range c.Auth.APIKeys {
		if other, dup := seen[key.KeyHash]; dup {
			return fmt.Errorf("api_keys[%d]: key_hash already mapped to principal %q", i, other)
		}
		seen[key.KeyHash] = key.Principal
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30s\" or \"1m\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
