// Scribe - on-device meeting transcription and summarization
package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/config"
)

// CLI is the command tree.
var CLI struct {
	LogLevel string `name:"log-level" help:"Override LOG_LEVEL (debug, info, warn, error)."`

	Serve      ServeCmd      `cmd:"" default:"1" help:"Run the HTTP, WebSocket and health servers."`
	Transcribe TranscribeCmd `cmd:"" help:"Transcribe and summarize a WAV file, printing the result."`
	Health     HealthCmd     `cmd:"" help:"Query a running server's gRPC health service."`
}

func main() {
	loaded := config.LoadEnvFiles()

	kctx := kong.Parse(&CLI,
		kong.Name("scribe"),
		kong.Description("Private, on-device meeting transcription with a rolling summary."),
		kong.UsageOnError(),
	)

	cfg := config.Load()
	if CLI.LogLevel != "" {
		cfg.LogLevel = CLI.LogLevel
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, f := range loaded {
		slog.Debug("env file loaded", "file", f)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	if err := kctx.Run(cfg); err != nil {
		slog.Error("command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}
