// Package config provides the workbot configuration schema. Configuration
// comes from a YAML file (workbot.yaml) with environment variable overrides
// (WORKBOT_ prefix).
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level workbot configuration.
type Config struct {
	// Server configures the webhook HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Auth configures bearer-token authentication for the webhook.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Store configures where sessions are persisted.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Calendar configures the Google Calendar mirror.
	Calendar CalendarConfig `yaml:"calendar" mapstructure:"calendar"`

	// Session configures start/stop semantics and the reconciler.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Telemetry configures OpenTelemetry trace and metric export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode enables development features (verbose logging, no auth).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file"`

	// DedupTTL is how long webhook message IDs are remembered for
	// duplicate suppression (e.g., "10m"). Defaults to "10m".
	DedupTTL string `yaml:"dedup_ttl" mapstructure:"dedup_ttl" validate:"omitempty,duration"`
}

// AuthConfig configures webhook authentication.
// When TokenHashes is empty, the webhook accepts unauthenticated requests.
type AuthConfig struct {
	// TokenHashes are the accepted bearer token hashes. Each entry is either
	// an Argon2id PHC string (from `workbot hash-token`) or "sha256:<hex>".
	TokenHashes []string `yaml:"token_hashes" mapstructure:"token_hashes"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	// Backend selects the store implementation.
	// Valid values: "memory", "file", "sqlite". Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory file sqlite"`

	// Path is the data file location. Required for "file" and "sqlite".
	Path string `yaml:"path" mapstructure:"path"`
}

// CalendarConfig configures the Google Calendar gateway.
type CalendarConfig struct {
	// CalendarID is the target calendar (e.g., "primary" or a calendar
	// address). Required unless dev mode fakes the calendar.
	CalendarID string `yaml:"calendar_id" mapstructure:"calendar_id"`

	// BearerToken is a static OAuth access token. Optional; deployments
	// behind a token-refreshing proxy leave this empty.
	BearerToken string `yaml:"bearer_token" mapstructure:"bearer_token"`

	// Timeout is the per-request timeout (e.g., "30s"). Defaults to "30s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// SessionConfig configures session semantics and the reconciliation loop.
type SessionConfig struct {
	// Locations is the closed set of permitted work locations.
	// Defaults to ["ieee", "mcgill", "ev", "home"].
	Locations []string `yaml:"locations" mapstructure:"locations"`

	// RollingHorizon is how far ahead the calendar event end is kept
	// while a session is open (e.g., "15m"). Defaults to "15m".
	RollingHorizon string `yaml:"rolling_horizon" mapstructure:"rolling_horizon" validate:"omitempty,duration"`

	// TopUpThreshold is the remaining-time level that triggers an
	// extension (e.g., "10m"). Must be shorter than RollingHorizon.
	// Defaults to "10m".
	TopUpThreshold string `yaml:"top_up_threshold" mapstructure:"top_up_threshold" validate:"omitempty,duration"`

	// ReconcileInterval is the reconciler cadence (e.g., "60s").
	// Defaults to "60s".
	ReconcileInterval string `yaml:"reconcile_interval" mapstructure:"reconcile_interval" validate:"omitempty,duration"`

	// StartPolicy is an optional CEL expression gating session starts.
	// Variables: actor, location, scope, hour, weekday. Empty allows all.
	StartPolicy string `yaml:"start_policy" mapstructure:"start_policy"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns trace and metric export on. Defaults to false;
	// Prometheus metrics on /metrics work regardless.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only by default. Users who need network access
	// must explicitly set http_addr.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.DedupTTL == "" {
		c.Server.DedupTTL = "10m"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}

	if c.Calendar.Timeout == "" {
		c.Calendar.Timeout = "30s"
	}

	if len(c.Session.Locations) == 0 {
		c.Session.Locations = []string{"ieee", "mcgill", "ev", "home"}
	}
	if c.Session.RollingHorizon == "" {
		c.Session.RollingHorizon = "15m"
	}
	if c.Session.TopUpThreshold == "" {
		c.Session.TopUpThreshold = "10m"
	}
	if c.Session.ReconcileInterval == "" {
		c.Session.ReconcileInterval = "60s"
	}
}

// SetDevDefaults applies permissive defaults for development mode.
// These are applied AFTER SetDefaults and BEFORE validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if !viper.IsSet("server.log_level") {
		c.Server.LogLevel = "debug"
	}
}

// RollingHorizon returns the parsed horizon. Call after Validate.
func (c *Config) RollingHorizon() time.Duration {
	return mustDuration(c.Session.RollingHorizon)
}

// TopUpThreshold returns the parsed threshold. Call after Validate.
func (c *Config) TopUpThreshold() time.Duration {
	return mustDuration(c.Session.TopUpThreshold)
}

// ReconcileInterval returns the parsed cadence. Call after Validate.
func (c *Config) ReconcileInterval() time.Duration {
	return mustDuration(c.Session.ReconcileInterval)
}

// DedupTTL returns the parsed dedup window. Call after Validate.
func (c *Config) DedupTTL() time.Duration {
	return mustDuration(c.Server.DedupTTL)
}

// CalendarTimeout returns the parsed calendar request timeout. Call after
// Validate.
func (c *Config) CalendarTimeout() time.Duration {
	return mustDuration(c.Calendar.Timeout)
}

// mustDuration parses a duration string already checked by validation.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic("config: duration not validated: " + s)
	}
	return d
}
