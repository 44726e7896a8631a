// Package llm reaches local OpenAI-compatible model servers for
// summarization and transcript formatting.
package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
)

// NewClient returns a go-openai client pointed at a local server.
func NewClient(baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// WrapError classifies a client error into an AppError. Server-side and
// connection failures stay retryable; request errors do not.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.Timeout, msg)
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.Cancelled, msg)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusNotFound:
		return apperrors.Wrap(err, apperrors.NotFound, msg)
	case status >= 500 || status == http.StatusTooManyRequests:
		return apperrors.Wrap(err, apperrors.LLMAPIError, msg).WithMetadata("status", http.StatusText(status))
	case status >= 400:
		return apperrors.Wrap(err, apperrors.InvalidArgument, msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.Wrap(err, apperrors.Unavailable, msg)
	}
	return apperrors.Wrap(err, apperrors.LLMAPIError, msg)
}

// HasModel reports whether the server lists a model with the given id.
func HasModel(list openai.ModelsList, id string) bool {
	for _, m := range list.Models {
		if m.ID == id {
			return true
		}
	}
	return false
}
