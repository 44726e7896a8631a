package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/config"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/health"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/server"
)

// ServeCmd runs the long-lived server.
type ServeCmd struct {
	Addr string `help:"Override HTTP_ADDR."`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	if c.Addr != "" {
		cfg.HTTPAddr = c.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// Load the speech model in the background so the API comes up first.
	go func() {
		if err := a.worker.Init(ctx); err != nil {
			slog.Warn("speech model not ready", "model", cfg.ASRModel, "error", err)
		}
	}()

	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return err
		}
		hs := health.NewServer(map[string]health.Readiness{
			health.ServiceASR:        a.worker.Ready,
			health.ServiceSummarizer: func() bool { return a.selection.Ready },
		}, health.DefaultCheckInterval)
		go func() {
			if err := hs.Serve(ctx, lis); err != nil {
				slog.Error("health server error", "error", err)
			}
		}()
	}

	srv := server.New(server.Deps{
		Pipeline:  a.manager,
		Sessions:  a.sessions,
		Formatter: a.formatter,
		Metrics:   a.metrics,
	})

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("scribe server starting",
			"http", cfg.HTTPAddr, "health", cfg.HealthAddr,
			"summarizer", a.selection.Model.Name(), "primary", a.selection.Primary)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := a.manager.StopLive(shutdownCtx); err != nil {
		slog.Warn("recording did not drain before shutdown", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}
