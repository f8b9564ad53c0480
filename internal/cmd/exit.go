package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/goalsmith/goalsmith/internal/client"
	errwrap "github.com/goalsmith/goalsmith/internal/errors"
	"github.com/goalsmith/goalsmith/internal/goals"
	"github.com/goalsmith/goalsmith/internal/observability"
)

// Replaced in tests.
var (
	osExit               = os.Exit
	exitStderr io.Writer = os.Stderr
)

// exitCodeFor picks the foundry exit code for a command failure. Errors with
// no better match get fallback.
func exitCodeFor(err error, fallback foundry.ExitCode) foundry.ExitCode {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		switch envelope.Code {
		case errwrap.CodeConfigInvalid:
			return foundry.ExitConfigInvalid
		case errwrap.CodeInvalidInput, errwrap.CodeValidationFailed, errwrap.CodeContentFlagged:
			return foundry.ExitInvalidArgument
		case errwrap.CodeProviderError, errwrap.CodeServiceUnavailable:
			return foundry.ExitExternalServiceUnavailable
		case errwrap.CodeRateLimited:
			return foundry.ExitResourceExhausted
		}
	}

	var apiErr *client.APIError
	switch {
	case stderrors.Is(err, client.ErrAdvisoryLimit):
		return foundry.ExitResourceExhausted
	case stderrors.As(err, &apiErr) && apiErr.RateLimited():
		return foundry.ExitResourceExhausted
	case stderrors.As(err, &apiErr) && apiErr.StatusCode >= 500:
		return foundry.ExitExternalServiceUnavailable
	case stderrors.As(err, &apiErr):
		return foundry.ExitInvalidArgument
	case stderrors.Is(err, goals.ErrGoalNotFound), stderrors.Is(err, goals.ErrTaskIndex):
		return foundry.ExitInvalidArgument
	}
	return fallback
}

// ExitForError exits with the code exitCodeFor derives from err.
func ExitForError(msg string, err error) {
	ExitWithCode(nil, exitCodeFor(err, foundry.ExitFailure), msg, err)
}

// ExitWithCode logs msg and err with the exit code's catalog entry and exits.
// A nil logger falls back to the CLI logger, then to stderr.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		logger = observability.CLILogger
	}
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID))
		for key, value := range envelope.Context {
			fields = append(fields, zap.Any(key, value))
		}
		if original, ok := envelope.Original.(error); ok && original != nil {
			err = original
		} else {
			err = stderrors.New(envelope.Message)
		}
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Error(msg, fields...)

	osExit(info.Code)
}

// ExitWithCodeStderr reports to stderr without a logger, for failures before
// logging is set up.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	_, _ = fmt.Fprintln(exitStderr, exitLine(msg, err))

	code := int(exitCode)
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		code = info.Code
		_, _ = fmt.Fprintf(exitStderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	}
	osExit(code)
}

// exitLine renders the FATAL line. Envelopes show their user-facing message
// and code rather than the envelope's debug string.
func exitLine(msg string, err error) string {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		return "FATAL: " + msg
	case stderrors.As(err, &envelope) && envelope != nil:
		return fmt.Sprintf("FATAL: %s [%s]: %s", msg, envelope.Code, envelope.Message)
	default:
		return fmt.Sprintf("FATAL: %s: %v", msg, err)
	}
}
