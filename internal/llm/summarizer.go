package llm

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/resilience"
)

const (
	summarySystemPrompt = "Respond with STRICT JSON only. Omit unknowns; do not invent."
	fallbackPrefix      = "Summarize into STRICT JSON with keys: title,key_points,decisions,action_items,timestamps.\n"

	DefaultMaxTokens = 256

	// go-openai drops a zero temperature from the request body.
	zeroTemperature = math.SmallestNonzeroFloat32
)

// Completer turns a prompt into raw model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Model is a Completer that must be loaded before use.
type Model interface {
	Completer
	Load(ctx context.Context) error
	Name() string
}

// ModelConfig addresses one model on an OpenAI-compatible server.
type ModelConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

func (c ModelConfig) maxTokens() int {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

// Chat is the primary summarizer: an instruction-tuned chat model. The
// summarizer and the Formatter share one Chat, and the local server runs one
// generation at a time, so requests are serialized.
type Chat struct {
	cfg    ModelConfig
	client *openai.Client
	mu     sync.Mutex
}

func NewChat(cfg ModelConfig) *Chat {
	return &Chat{cfg: cfg}
}

func (c *Chat) Name() string { return c.cfg.Model }

// Load checks that the server answers.
func (c *Chat) Load(ctx context.Context) error {
	client, err := load(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

func (c *Chat) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, summarySystemPrompt, prompt, c.cfg.maxTokens())
}

func (c *Chat) chat(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if c.client == nil {
		return "", apperrors.New(apperrors.LLMNotConfigured, "chat model not loaded")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: zeroTemperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", WrapError(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.LLMInvalidResponse, "chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Fallback is the portable summarizer: a small text-to-text model driven
// through plain completions.
type Fallback struct {
	cfg    ModelConfig
	client *openai.Client
	mu     sync.Mutex
}

func NewFallback(cfg ModelConfig) *Fallback {
	return &Fallback{cfg: cfg}
}

func (f *Fallback) Name() string { return f.cfg.Model }

func (f *Fallback) Load(ctx context.Context) error {
	client, err := load(ctx, f.cfg)
	if err != nil {
		return err
	}
	f.client = client
	return nil
}

func (f *Fallback) Complete(ctx context.Context, prompt string) (string, error) {
	if f.client == nil {
		return "", apperrors.New(apperrors.LLMNotConfigured, "fallback model not loaded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, err := f.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       f.cfg.Model,
		Prompt:      fallbackPrefix + prompt,
		MaxTokens:   f.cfg.maxTokens(),
		Temperature: zeroTemperature,
	})
	if err != nil {
		return "", WrapError(err, "completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.LLMInvalidResponse, "completion returned no choices")
	}
	return resp.Choices[0].Text, nil
}

func load(ctx context.Context, cfg ModelConfig) (*openai.Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, apperrors.New(apperrors.LLMNotConfigured, "no model configured")
	}
	client := NewClient(cfg.BaseURL, cfg.APIKey)
	models, err := client.ListModels(ctx)
	if err != nil {
		return nil, WrapError(err, "model server unreachable")
	}
	if !HasModel(models, cfg.Model) {
		slog.Warn("model not listed by server", "model", cfg.Model, "base_url", cfg.BaseURL)
	}
	return client, nil
}

// Guarded short-circuits calls while the underlying model keeps failing.
type Guarded struct {
	next    Completer
	breaker *resilience.Breaker
}

func WithBreaker(next Completer, b *resilience.Breaker) *Guarded {
	return &Guarded{next: next, breaker: b}
}

func (g *Guarded) Complete(ctx context.Context, prompt string) (string, error) {
	return resilience.ExecuteWithResult(g.breaker, func() (string, error) {
		return g.next.Complete(ctx, prompt)
	})
}
