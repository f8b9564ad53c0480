package main

import (
	"github.com/goalsmith/goalsmith/internal/cmd"
	"github.com/goalsmith/goalsmith/internal/server/handlers"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-10-01"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		// The exit code follows the error: bad config, bad arguments,
		// quota exhausted or server unavailable.
		cmd.ExitForError("Command execution failed", err)
	}
}
