package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goalsmith/goalsmith/internal/observability"
)

func TestInitCLILogger(t *testing.T) {
	observability.InitCLILogger("goalsmith-test", true)
	require.NotNil(t, observability.CLILogger)

	observability.CLILogger.Debug("cli logger ready", zap.String("test", "value"))
}

func TestInitServerLogger(t *testing.T) {
	observability.InitServerLogger(observability.ServerLoggerOptions{
		Service:     "goalsmith-test",
		Level:       "debug",
		Environment: "test",
		Namespace:   "goalsmith",
	})
	require.NotNil(t, observability.ServerLogger)

	observability.ServerLogger.Info("server logger ready",
		zap.String("component", "test"),
		zap.Int("remaining", 4))
}

func TestStructuredLoggerWithCorrelation(t *testing.T) {
	logger, err := logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: "INFO",
		Service:      "correlation-test",
		Environment:  "test",
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: make(map[string]any)},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
	})
	require.NoError(t, err)
	logger.Info("gate decision", zap.String("stage", "validation"))
}

func TestCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	require.NotEmpty(t, version.Gofulmen)
	require.NotEmpty(t, version.Crucible)
}
