package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/auth"
)

// RegisterCustomValidators registers workbot-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates Go duration strings like "15m", "60s"
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDuration accepts any string time.ParseDuration understands.
func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateHorizonOrdering(); err != nil {
		return err
	}
	if err := c.validateStorePath(); err != nil {
		return err
	}
	if err := c.validateTokenHashes(); err != nil {
		return err
	}
	if err := c.validateLocations(); err != nil {
		return err
	}

	return nil
}

// validateHorizonOrdering ensures the reconciler can actually keep the
// calendar ahead: the top-up threshold must be below the rolling horizon,
// and each pass must come around before the horizon is consumed.
func (c *Config) validateHorizonOrdering() error {
	horizon, err := time.ParseDuration(c.Session.RollingHorizon)
	if err != nil {
		return fmt.Errorf("session: rolling_horizon: %w", err)
	}
	threshold, err := time.ParseDuration(c.Session.TopUpThreshold)
	if err != nil {
		return fmt.Errorf("session: top_up_threshold: %w", err)
	}
	interval, err := time.ParseDuration(c.Session.ReconcileInterval)
	if err != nil {
		return fmt.Errorf("session: reconcile_interval: %w", err)
	}

	if threshold >= horizon {
		return fmt.Errorf("session: top_up_threshold (%s) must be shorter than rolling_horizon (%s)",
			c.Session.TopUpThreshold, c.Session.RollingHorizon)
	}
	if interval <= 0 {
		return errors.New("session: reconcile_interval must be positive")
	}
	// A pass must come around before the top-up window is consumed,
	// otherwise the mirrored event can expire between passes.
	if interval >= threshold {
		return fmt.Errorf("session: reconcile_interval (%s) must be shorter than top_up_threshold (%s)",
			c.Session.ReconcileInterval, c.Session.TopUpThreshold)
	}
	return nil
}

// validateStorePath ensures file-backed stores have a path.
func (c *Config) validateStorePath() error {
	switch c.Store.Backend {
	case "file", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store: path is required for backend %q", c.Store.Backend)
		}
	}
	return nil
}

// validateTokenHashes checks every configured token hash has a recognized
// format, so a plaintext token in the config file fails fast.
func (c *Config) validateTokenHashes() error {
	for i, h := range c.Auth.TokenHashes {
		if auth.DetectHashType(h) == "unknown" {
			return fmt.Errorf("auth: token_hashes[%d] has unrecognized format (expected argon2id PHC or sha256:<hex>)", i)
		}
	}
	return nil
}

// validateLocations rejects empty and duplicate location labels.
func (c *Config) validateLocations() error {
	seen := make(map[string]struct{}, len(c.Session.Locations))
	for i, loc := range c.Session.Locations {
		if strings.TrimSpace(loc) == "" {
			return fmt.Errorf("session: locations[%d] is empty", i)
		}
		if loc != strings.ToLower(loc) {
			return fmt.Errorf("session: locations[%d] (%q) must be lowercase, commands are lowercased before matching", i, loc)
		}
		if _, dup := seen[loc]; dup {
			return fmt.Errorf("session: locations[%d] (%q) is duplicated", i, loc)
		}
		seen[loc] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
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

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration like \"15m\" or \"60s\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
