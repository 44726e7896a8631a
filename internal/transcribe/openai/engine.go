// Package openai implements the speech engine against a local
// OpenAI-compatible transcription endpoint (LocalAI, whisper servers).
package openai

import (
	"context"
	"log/slog"
	"math"
	"os"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/audio"
	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/llm"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/transcribe"
)

// Config selects the endpoint and model.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	TempDir  string // chunk WAV files; empty uses os.TempDir
}

// Engine sends each chunk as a 16-bit mono WAV upload.
type Engine struct {
	cfg    Config
	client *gopenai.Client
}

var _ transcribe.Engine = (*Engine)(nil)

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Load connects to the server and checks that it answers.
func (e *Engine) Load(ctx context.Context) error {
	client := llm.NewClient(e.cfg.BaseURL, e.cfg.APIKey)
	models, err := client.ListModels(ctx)
	if err != nil {
		return llm.WrapError(err, "speech server unreachable")
	}
	if !llm.HasModel(models, e.cfg.Model) {
		slog.Warn("speech model not listed by server", "model", e.cfg.Model, "base_url", e.cfg.BaseURL)
	}
	e.client = client
	slog.Info("speech engine ready", "model", e.cfg.Model, "base_url", e.cfg.BaseURL)
	return nil
}

func (e *Engine) Transcribe(ctx context.Context, pcm []float32) (transcribe.Result, error) {
	if e.client == nil {
		return transcribe.Result{}, apperrors.New(apperrors.NotReady, "speech engine not loaded")
	}

	f, err := os.CreateTemp(e.cfg.TempDir, "chunk-*.wav")
	if err != nil {
		return transcribe.Result{}, apperrors.Wrap(err, apperrors.Internal, "failed to create chunk file")
	}
	path := f.Name()
	defer os.Remove(path)

	err = audio.WriteWAV(f, pcm, transcribe.SampleRate)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return transcribe.Result{}, apperrors.Wrap(err, apperrors.Internal, "failed to encode chunk")
	}

	resp, err := e.client.CreateTranscription(ctx, gopenai.AudioRequest{
		Model:    e.cfg.Model,
		FilePath: path,
		Language: e.cfg.Language,
		Format:   gopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return transcribe.Result{}, llm.WrapError(err, "transcription request failed")
	}
	return transcribe.Result{Text: resp.Text, Confidence: confidence(resp)}, nil
}

// confidence averages per-segment token probability; servers that omit
// segments are taken at face value.
func confidence(resp gopenai.AudioResponse) float64 {
	if len(resp.Segments) == 0 {
		return 1
	}
	var sum float64
	for _, s := range resp.Segments {
		sum += math.Exp(s.AvgLogprob)
	}
	return math.Min(1, sum/float64(len(resp.Segments)))
}

func (e *Engine) Close() error {
	e.client = nil
	return nil
}
