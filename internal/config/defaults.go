package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/goalsmith/goalsmith/internal/ailink"
	"github.com/goalsmith/goalsmith/internal/quota"
	"github.com/goalsmith/goalsmith/internal/validate"
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 64<<10)
	v.SetDefault("server.admin_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Quota defaults
	v.SetDefault("quota.server.window", quota.DefaultServerConfig.Window.String())
	v.SetDefault("quota.server.max_requests", quota.DefaultServerConfig.MaxRequests)
	v.SetDefault("quota.client.window", quota.DefaultClientConfig.Window.String())
	v.SetDefault("quota.client.max_requests", quota.DefaultClientConfig.MaxRequests)
	v.SetDefault("quota.sweep_interval", "5m")

	// Validation defaults
	v.SetDefault("validation.max_length", validate.DefaultMaxLength)
	v.SetDefault("validation.reject_control_only", true)
	v.SetDefault("validation.disallowed_patterns", []string{})

	// AILink defaults
	ai := ailink.DefaultConfig()
	v.SetDefault("ailink.base_url", ai.BaseURL)
	v.SetDefault("ailink.api_key", "")
	v.SetDefault("ailink.model", ai.Model)
	v.SetDefault("ailink.moderation_model", ai.ModerationModel)
	v.SetDefault("ailink.timeout", ai.Timeout.String())
	v.SetDefault("ailink.max_tasks", ai.MaxTasks)
	v.SetDefault("ailink.trace_file", "")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Client defaults
	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.timeout", "90s")
}

// BindEnv enables GOALSMITH_* overrides for every key, with "." mapped to "_"
// (GOALSMITH_QUOTA_SERVER_MAX_REQUESTS).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewViper returns a viper instance with defaults and env bindings.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}
