package config

import (
	"time"

	"github.com/goalsmith/goalsmith/internal/ailink"
	"github.com/goalsmith/goalsmith/internal/quota"
)

// Config represents the complete application configuration. Values come from
// defaults registered on viper, an optional config file and GOALSMITH_*
// environment variables, in increasing order of precedence.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Validation ValidationConfig `mapstructure:"validation"`
	AILink     ailink.Config    `mapstructure:"ailink"`
	Store      StoreConfig      `mapstructure:"store"`
	Client     ClientConfig     `mapstructure:"client"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" validate:"gte=0"`

	// AdminToken enables the signal endpoint. Empty disables it.
	AdminToken string `mapstructure:"admin_token"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated exporter port. /metrics on the main server
	// proxies to it.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// QuotaConfig holds the authoritative server budget and the advisory client
// budget. The client budget must be at least as strict as the server's.
type QuotaConfig struct {
	Server        quota.Config  `mapstructure:"server"`
	Client        quota.Config  `mapstructure:"client"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

// ValidationConfig configures the goal text validator.
type ValidationConfig struct {
	MaxLength          int      `mapstructure:"max_length" validate:"gte=0"`
	RejectControlOnly  bool     `mapstructure:"reject_control_only"`
	DisallowedPatterns []string `mapstructure:"disallowed_patterns" validate:"dive,regexp"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver" validate:"omitempty,oneof=libsql"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ClientConfig configures the CLI's connection to a goalsmith server.
type ClientConfig struct {
	ServerURL string        `mapstructure:"server_url" validate:"omitempty,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
}
