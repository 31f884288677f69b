// Package config provides configuration types for SnipVault.
//
// Configuration is file-based (YAML) with environment variable overrides.
// The admission subsystem ships with a built-in policy catalog; the file
// only needs to list the policies an operator wants to override.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the SnipVault server.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Admission configures the request admission control subsystem.
	Admission AdmissionConfig `yaml:"admission" mapstructure:"admission"`

	// Auth configures file-based user accounts and sessions.
	// Optional: when empty, only guest traffic is served.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Audit configures the in-memory denial audit trail.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Store configures snippet persistence.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Executor configures the external code execution backend.
	Executor ExecutorConfig `yaml:"executor" mapstructure:"executor"`

	// DevMode enables development features (verbose logging, seeded dev user).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// TLS is not handled here; terminate it at a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// AdmissionConfig configures rate limiting and admission control.
type AdmissionConfig struct {
	// Enabled turns admission control on or off.
	// Defaults to true; disable only for load testing.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// CleanupInterval is how often expired counter windows are swept (e.g., "5m").
	// Defaults to "5m" if not specified.
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// ViolationRetention is how long violation history is kept after the last
	// recorded violation (e.g., "1h"). Defaults to "1h" if not specified.
	ViolationRetention string `yaml:"violation_retention" mapstructure:"violation_retention" validate:"omitempty,duration"`

	// SuspiciousThreshold is the violation count at which a denial is flagged
	// as suspicious in logs and the audit trail. Defaults to 5.
	SuspiciousThreshold int `yaml:"suspicious_threshold" mapstructure:"suspicious_threshold" validate:"omitempty,min=1"`

	// Policies overrides window and limit for built-in policies by name.
	// Unlisted policies keep their built-in values.
	Policies []PolicyOverrideConfig `yaml:"policies" mapstructure:"policies" validate:"omitempty,dive"`

	// BypassRules are CEL expressions evaluated before admission.
	// A request matching any rule skips rate limiting entirely.
	// Available variables: ip, path, method, authenticated, user_type.
	BypassRules []BypassRuleConfig `yaml:"bypass_rules" mapstructure:"bypass_rules" validate:"omitempty,dive"`
}

// PolicyOverrideConfig overrides one built-in admission policy.
type PolicyOverrideConfig struct {
	// Name identifies the built-in policy to override (e.g., "execute").
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Window is the counting window duration (e.g., "60s", "15m").
	Window string `yaml:"window" mapstructure:"window" validate:"required,duration"`

	// Limit is the base request limit per window.
	Limit int `yaml:"limit" mapstructure:"limit" validate:"required,min=1"`
}

// BypassRuleConfig defines a named admission bypass rule.
type BypassRuleConfig struct {
	// Name is a human-readable identifier for this rule.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression; when it evaluates true the request
	// skips admission checks.
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`
}

// AuthConfig configures file-based authentication.
type AuthConfig struct {
	// SessionTTL is the duration before sessions expire (e.g., "30m", "24h").
	// Defaults to "24h" if not specified.
	SessionTTL string `yaml:"session_ttl" mapstructure:"session_ttl" validate:"omitempty,duration"`

	// Users defines the known accounts.
	Users []UserConfig `yaml:"users" mapstructure:"users" validate:"omitempty,dive"`
}

// UserConfig defines a file-based user account.
type UserConfig struct {
	// ID is the unique identifier for this user.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Email is the login email address.
	Email string `yaml:"email" mapstructure:"email" validate:"required,email"`

	// PasswordHash is the Argon2id hash of the password.
	// Generate with: snipvault hash-password
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash" validate:"required,argon2id_hash"`
}

// AuditConfig configures the denial audit trail.
type AuditConfig struct {
	// ChannelSize is the buffer size for the audit channel.
	// Larger values handle burst traffic better but use more memory.
	// Defaults to 1000 if not specified or 0.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of records to batch before writing.
	// Defaults to 100 if not specified or 0.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often to flush pending records (e.g., "1s", "500ms").
	// Defaults to "1s" if not specified.
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`

	// BufferSize is the number of recent denial records kept in the
	// in-memory ring buffer for the admin endpoint. Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`

	// Dir, when set, persists denial records to daily JSON Lines files in
	// this directory instead of the in-memory ring buffer.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// RetentionDays is how many days of denial log files to keep.
	// Only used when Dir is set. Defaults to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB rotates a denial log file once it exceeds this size.
	// Only used when Dir is set. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
}

// StoreConfig configures snippet persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Use ":memory:" for ephemeral storage.
	// Defaults to "snipvault.db".
	Path string `yaml:"path" mapstructure:"path"`
}

// ExecutorConfig configures the external code execution backend.
type ExecutorConfig struct {
	// URL is the base URL of the execution service (e.g., "http://localhost:9090").
	// When empty, the execute endpoint returns 503.
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// Timeout is the per-execution request timeout (e.g., "30s").
	// Defaults to "30s" if not specified.
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	// Provide a default dev account if none configured.
	// Argon2id hash of "dev-password".
	if len(c.Auth.Users) == 0 {
		c.Auth.Users = []UserConfig{
			{
				ID:           "dev-user",
				Email:        "dev@localhost.localdomain",
				PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$S3VHbGtkVnExVmdoMFNwRQ$xk0TsPSM8+7YtzUZXKEIPkCAC+DikZbOeAVGKQNDUPg",
			},
		}
	}

	// Ephemeral storage so dev runs leave nothing behind.
	if c.Store.Path == "" {
		c.Store.Path = ":memory:"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only; network access must be explicit.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// Admission defaults — enabled unless explicitly turned off.
	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("admission.enabled") {
		c.Admission.Enabled = true
	}
	if c.Admission.CleanupInterval == "" {
		c.Admission.CleanupInterval = "5m"
	}
	if c.Admission.ViolationRetention == "" {
		c.Admission.ViolationRetention = "1h"
	}
	if c.Admission.SuspiciousThreshold == 0 {
		c.Admission.SuspiciousThreshold = 5
	}

	// Auth defaults
	if c.Auth.SessionTTL == "" {
		c.Auth.SessionTTL = "24h"
	}

	// Audit defaults
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}

	// Store defaults
	if c.Store.Path == "" {
		c.Store.Path = "snipvault.db"
	}

	// Executor defaults
	if c.Executor.Timeout == "" {
		c.Executor.Timeout = "30s"
	}
}

// Duration parses a duration config value that has already passed validation.
// Falls back to def when the value is empty.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
