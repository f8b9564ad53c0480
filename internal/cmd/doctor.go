package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goalsmith/goalsmith/internal/config"
	"github.com/goalsmith/goalsmith/internal/observability"
)

const doctorPingTimeout = 3 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation, the local goal store, and the configured goalsmith server.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		logger := observability.CLILogger
		logger.Info("=== " + config.AppName + " doctor ===")
		logger.Info("")

		allChecks := true
		totalChecks := 6

		// Check 1: Gofulmen and Crucible
		version := crucible.GetVersion()
		if version.Gofulmen != "" && version.Crucible != "" {
			logger.Info(fmt.Sprintf("[1/%d] Checking Gofulmen/Crucible... ✅ v%s / v%s", totalChecks, version.Gofulmen, version.Crucible))
		} else {
			logger.Warn(fmt.Sprintf("[1/%d] Checking Gofulmen/Crucible... ⚠️  version information unavailable", totalChecks))
			allChecks = false
		}

		// Check 2: Environment
		logger.Info(fmt.Sprintf("[2/%d] Checking environment... ✅ %s %s/%s", totalChecks, runtime.Version(), runtime.GOOS, runtime.GOARCH),
			zap.String("config_path", config.DefaultConfigPath()))

		// Check 3: Configuration
		cfg, cfgErr := loadConfig()
		if cfgErr != nil {
			logger.Error(fmt.Sprintf("[3/%d] Checking configuration... ❌ invalid", totalChecks), zap.Error(cfgErr))
			logger.Info("")
			logger.Warn("⚠️  Fix the configuration and run doctor again.")
			return
		}
		logger.Info(fmt.Sprintf("[3/%d] Checking configuration... ✅ server %s, client %s", totalChecks,
			cfg.Quota.Server.String(), cfg.Quota.Client.String()))

		// Check 4: Goal store
		if ok := doctorStore(ctx, cfg, fmt.Sprintf("[4/%d]", totalChecks)); !ok {
			allChecks = false
		}

		// Check 5: Provider key, only needed when this machine runs serve
		if strings.TrimSpace(cfg.AILink.APIKey) != "" {
			logger.Info(fmt.Sprintf("[5/%d] Checking provider key... ✅ configured (model %s)", totalChecks, cfg.AILink.Model))
		} else {
			logger.Warn(fmt.Sprintf("[5/%d] Checking provider key... ⚠️  not set (%s_AILINK_API_KEY or %s); needed by serve only",
				totalChecks, config.EnvPrefix, config.FallbackAPIKeyEnv))
		}

		// Check 6: Server reachability
		if err := pingServer(ctx, cfg.Client.ServerURL); err != nil {
			logger.Warn(fmt.Sprintf("[6/%d] Checking server %s... ⚠️  unreachable", totalChecks, cfg.Client.ServerURL), zap.Error(err))
			logger.Info("       goal plan needs a running server ('goalsmith serve' or client.server_url).")
			allChecks = false
		} else {
			logger.Info(fmt.Sprintf("[6/%d] Checking server %s... ✅ live", totalChecks, cfg.Client.ServerURL))
		}

		logger.Info("")
		if allChecks {
			logger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", config.AppName))
		} else {
			logger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		logger.Info("")
		logger.Info("=== End Diagnostics ===")
	},
}

func doctorStore(ctx context.Context, cfg *config.Config, prefix string) bool {
	logger := observability.CLILogger
	location := cfg.Store.URL
	if location == "" {
		location, _ = filepath.Abs(cfg.Store.Path)
		if info, err := os.Stat(location); err == nil {
			location = fmt.Sprintf("%s (%s)", location, formatFileSize(info.Size()))
		}
	}

	db, err := openStore(ctx)
	if err != nil {
		logger.Warn(fmt.Sprintf("%s Checking goal store... ⚠️  cannot open %s", prefix, location), zap.Error(err))
		return false
	}
	defer db.Close() //nolint:errcheck

	list, err := db.ListGoals(ctx)
	if err != nil {
		logger.Warn(fmt.Sprintf("%s Checking goal store... ⚠️  cannot read goals", prefix), zap.Error(err))
		return false
	}
	logger.Info(fmt.Sprintf("%s Checking goal store... ✅ %s, %d goal(s)", prefix, location, len(list)))
	return true
}

// pingServer calls the liveness endpoint of a goalsmith server.
func pingServer(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, doctorPingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health/live", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("liveness returned status %d", resp.StatusCode)
	}
	return nil
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
