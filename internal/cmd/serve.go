package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goalsmith/goalsmith/internal/ailink"
	"github.com/goalsmith/goalsmith/internal/config"
	errwrap "github.com/goalsmith/goalsmith/internal/errors"
	"github.com/goalsmith/goalsmith/internal/gate"
	"github.com/goalsmith/goalsmith/internal/metrics"
	"github.com/goalsmith/goalsmith/internal/observability"
	"github.com/goalsmith/goalsmith/internal/quota"
	"github.com/goalsmith/goalsmith/internal/server"
	"github.com/goalsmith/goalsmith/internal/server/handlers"
	"github.com/goalsmith/goalsmith/internal/validate"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// providerHealthChecker reports degraded while no provider key is set.
type providerHealthChecker struct {
	planner *ailink.Planner
}

func (p providerHealthChecker) CheckHealth(ctx context.Context) error {
	if !p.planner.Configured() {
		return fmt.Errorf("provider api key not configured: %w", handlers.ErrDegraded)
	}
	return nil
}

// quotaHealthChecker publishes the tracked identity count.
type quotaHealthChecker struct {
	tracker *quota.ServerTracker
}

func (q quotaHealthChecker) CheckHealth(ctx context.Context) error {
	metrics.SetQuotaIdentities(q.tracker.Len())
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the task generation API with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config file re-read (restart to apply quota changes)

Requests are rate limited per caller address, validated, moderated and then
broken down into tasks by the configured model.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Invalid configuration", err)
		}

		namespace := config.AppName
		observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:   config.AppName,
			Level:     cfg.Logging.Level,
			Namespace: namespace,
		})
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now().Unix())
		} else {
			observability.DisableMetrics()
		}

		defer enableTracing(cfg.AILink.TraceFile)()

		patterns, err := validate.CompilePatterns(cfg.Validation.DisallowedPatterns)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Invalid validation.disallowed_patterns", err)
		}

		planner := ailink.NewPlanner(cfg.AILink)
		if !planner.Configured() {
			logger.Warn("No provider API key configured; task generation requests will fail",
				zap.String("env", config.EnvPrefix+"_AILINK_API_KEY"))
		}

		tracker := quota.NewServerTracker(cfg.Quota.Server)
		processor := gate.New(tracker, planner,
			gate.WithMaxLength(cfg.Validation.MaxLength),
			gate.WithValidateOptions(
				validate.RejectControlOnly(cfg.Validation.RejectControlOnly),
				validate.DisallowPatterns(patterns...),
			),
		)

		health := handlers.NewHealthManager(versionInfo.Version)
		health.RegisterChecker("quota", quotaHealthChecker{tracker: tracker})
		health.RegisterChecker("provider", providerHealthChecker{planner: planner})
		if cfg.Metrics.Enabled {
			health.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		opts := server.Options{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			AdminToken:   cfg.Server.AdminToken,
		}
		srv := server.New(opts, processor, health)

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("addr", srv.Addr()),
			zap.Int("metrics_port", observability.GetMetricsPort()),
			zap.String("server_quota", cfg.Quota.Server.String()),
			zap.String("model", planner.Model()),
			zap.Int("max_length", cfg.Validation.MaxLength))

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		tracker.StartSweeper(ctx, cfg.Quota.SweepInterval)
		defer tracker.Stop()

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		// Handler 2: Stop the quota sweeper
		signals.OnShutdown(func(ctx context.Context) error {
			tracker.Stop()
			return nil
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancelShutdown := context.WithTimeout(ctx, shutdownTimeout)
			defer cancelShutdown()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			cancel()
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "config reload failed")
			}

			if _, err := loadConfig(); err != nil {
				logger.Warn("Reloaded config is invalid; keeping running settings", zap.Error(err))
				return nil
			}

			logger.Info("Configuration re-read; restart to apply server and quota changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			defer cancel()
			return srv.Start()
		})
		group.Go(func() error {
			if err := signals.Listen(groupCtx); err != nil && groupCtx.Err() == nil {
				logger.Error("Signal handler error", zap.Error(err))
				return err
			}
			return nil
		})

		if err := group.Wait(); err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
