package llm

import (
	"context"
	"log/slog"

	"github.com/klauspost/cpuid/v2"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/config"
)

// Selection is the summarizer chosen at startup.
type Selection struct {
	Model       Model
	Primary     bool
	Accelerated bool
	Ready       bool
}

// Accelerated reports whether the host can run the primary model at
// interactive speed. "on" and "off" override detection.
func Accelerated(mode string) bool {
	switch mode {
	case config.AccelOn:
		return true
	case config.AccelOff:
		return false
	}
	return cpuid.CPU.Supports(cpuid.AVX2) || cpuid.CPU.Supports(cpuid.ASIMD)
}

// SelectModel picks the primary model when the host is accelerated and the
// primary loads; otherwise the fallback. It runs once at startup.
func SelectModel(ctx context.Context, mode string, primary, fallback Model) Selection {
	accel := Accelerated(mode)
	slog.Info("selecting summarizer model", "mode", mode, "accelerated", accel, "cpu", cpuid.CPU.BrandName)

	if accel && primary != nil {
		err := primary.Load(ctx)
		if err == nil {
			slog.Info("summarizer selected", "backend", "primary", "model", primary.Name())
			return Selection{Model: primary, Primary: true, Accelerated: true, Ready: true}
		}
		slog.Warn("primary model unavailable, using fallback", "model", primary.Name(), "error", err)
	}

	sel := Selection{Model: fallback, Accelerated: accel}
	if fallback == nil {
		return sel
	}
	if err := fallback.Load(ctx); err != nil {
		slog.Warn("fallback model unavailable", "model", fallback.Name(), "error", err)
		return sel
	}
	sel.Ready = true
	slog.Info("summarizer selected", "backend", "fallback", "model", fallback.Name())
	return sel
}
