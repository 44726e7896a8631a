package main

import (
	"context"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/audio"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/config"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/llm"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/metrics"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/resilience"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/session"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/transcribe"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/transcribe/openai"
)

// app holds the wired pipeline shared by the commands.
type app struct {
	cfg       *config.Config
	worker    *transcribe.Worker
	selection llm.Selection
	formatter *llm.Formatter
	sessions  *session.SQLStore
	metrics   *metrics.Metrics
	manager   *orchestrator.Manager
}

// newApp selects the summarizer and wires the pipeline. The session store
// is opened only when withStore is set.
func newApp(ctx context.Context, cfg *config.Config, withStore bool) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	a.worker = transcribe.NewWorker(openai.New(openai.Config{
		BaseURL:  cfg.ASRBaseURL,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.ASRModel,
		Language: cfg.ASRLanguage,
	}), resilience.LoadRetryConfig())

	chat := llm.NewChat(llm.ModelConfig{
		BaseURL:   cfg.LLMBaseURL,
		APIKey:    cfg.LLMAPIKey,
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
	})
	fallback := llm.NewFallback(llm.ModelConfig{
		BaseURL:   cfg.LLMFallbackBaseURL,
		APIKey:    cfg.LLMAPIKey,
		Model:     cfg.LLMFallbackModel,
		MaxTokens: cfg.LLMMaxTokens,
	})
	a.selection = llm.SelectModel(ctx, cfg.LLMAcceleration, chat, fallback)
	if a.selection.Primary {
		a.formatter = llm.NewFormatter(chat)
	} else {
		a.formatter = llm.NewFormatter(nil)
	}
	summarizer := llm.WithBreaker(a.selection.Model, resilience.New("summarizer", resilience.SummarizerConfig()))

	deps := orchestrator.Deps{
		ASR:        a.worker,
		Summarizer: summarizer,
		Metrics:    a.metrics,
		NewSource: func() orchestrator.FrameSource {
			return audio.NewCapturer(audio.CaptureConfig{
				SampleRate:      cfg.CaptureSampleRate,
				FramesPerBuffer: cfg.CaptureFrames,
				Device:          cfg.CaptureDevice,
				ExcludedDevices: cfg.ExcludedAudioDevices,
			})
		},
	}
	if withStore {
		store, err := session.Open(cfg.DBPath)
		if err != nil {
			a.worker.Close()
			return nil, err
		}
		a.sessions = store
		deps.Sessions = store
	}

	a.manager = orchestrator.New(orchestrator.ConfigFrom(cfg), deps)
	return a, nil
}

func (a *app) Close() {
	a.manager.Close()
	a.worker.Close()
	if a.sessions != nil {
		_ = a.sessions.Close()
	}
}
