package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/goalsmith/goalsmith/internal/errors"
	"github.com/goalsmith/goalsmith/internal/observability"
	"github.com/goalsmith/goalsmith/internal/validate"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		// Check 1: Logger initialized
		if observability.CLILogger == nil {
			// Can't log if logger is nil, so use stderr
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		observability.CLILogger.Info("Running health check...")

		// Check 2: Version info available
		if versionInfo.Version == "" {
			observability.CLILogger.Error("❌ FAIL: Version information missing")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		// Check 3: Configuration loads and validates
		cfg, err := loadConfig()
		if err != nil {
			observability.CLILogger.Error("❌ FAIL: Configuration invalid", zap.Error(err))
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		if _, err := validate.CompilePatterns(cfg.Validation.DisallowedPatterns); err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid validation.disallowed_patterns", err)
			return
		}
		observability.CLILogger.Info("✅ Configuration valid",
			zap.String("server_quota", cfg.Quota.Server.String()),
			zap.String("client_quota", cfg.Quota.Client.String()))

		// Check 4: Provider key (warning only)
		if cfg.AILink.APIKey == "" {
			observability.CLILogger.Warn("⚠️  No provider API key configured; serve will reject generation requests")
		} else {
			observability.CLILogger.Info("✅ Provider API key configured")
		}

		// Overall status
		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
