package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
)

func fakeServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "whisper-base.en", "object": "model"}},
		})
	})
	mux.HandleFunc("POST /v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"model crashed","type":"server_error"}}`))
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		head, _ := io.ReadAll(io.LimitReader(file, 4))
		if !bytes.Equal(head, []byte("RIFF")) {
			t.Errorf("upload is not a WAV file: %q", head)
		}
		if got := r.FormValue("model"); got != "whisper-base.en" {
			t.Errorf("model = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "en",
			"duration": 1.0,
			"text":     " the budget is frozen",
			"segments": []map[string]any{
				{"id": 0, "start": 0, "end": 0.5, "text": "the budget", "avg_logprob": math.Log(0.8)},
				{"id": 1, "start": 0.5, "end": 1, "text": "is frozen", "avg_logprob": math.Log(0.6)},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEngineTranscribe(t *testing.T) {
	srv := fakeServer(t, http.StatusOK)
	e := New(Config{BaseURL: srv.URL + "/v1", Model: "whisper-base.en", Language: "en", TempDir: t.TempDir()})

	if _, err := e.Transcribe(context.Background(), make([]float32, 16000)); !apperrors.IsCode(err, apperrors.NotReady) {
		t.Errorf("Transcribe before Load = %v, want NOT_READY", err)
	}
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	res, err := e.Transcribe(context.Background(), make([]float32, 16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != " the budget is frozen" {
		t.Errorf("Text = %q", res.Text)
	}
	if math.Abs(res.Confidence-0.7) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.7", res.Confidence)
	}
}

func TestEngineServerError(t *testing.T) {
	srv := fakeServer(t, http.StatusInternalServerError)
	e := New(Config{BaseURL: srv.URL + "/v1", Model: "whisper-base.en", TempDir: t.TempDir()})
	if err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := e.Transcribe(context.Background(), make([]float32, 1600))
	if !apperrors.IsCode(err, apperrors.LLMAPIError) {
		t.Errorf("err = %v, want LLM_API_ERROR", err)
	}
}

func TestEngineLoadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := New(Config{BaseURL: url + "/v1", Model: "whisper-base.en"})
	err := e.Load(context.Background())
	if !apperrors.IsCode(err, apperrors.Unavailable) {
		t.Errorf("err = %v, want UNAVAILABLE", err)
	}
}
