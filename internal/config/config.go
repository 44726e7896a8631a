// Package config handles platform configuration
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
)

// Acceleration modes for the summarizer model selection.
const (
	AccelAuto = "auto"
	AccelOn   = "on"
	AccelOff  = "off"
)

type Config struct {
	HTTPAddr   string
	HealthAddr string // gRPC health service; empty disables
	DBPath     string
	LogLevel   string

	// Live capture
	CaptureSampleRate    int
	CaptureFrames        int
	CaptureDevice        string
	ExcludedAudioDevices []string

	// Segmenter
	VADEnergyThreshold float64
	VADMinChunkSec     float64
	VADMaxChunkSec     float64
	VADHangoverSec     float64

	// Pipeline
	FileChunkSec         float64
	RecentWindowSegments int

	// Speech-to-text endpoint
	ASRBaseURL  string
	ASRModel    string
	ASRLanguage string

	// Summarizer endpoints
	LLMBaseURL         string
	LLMAPIKey          string
	LLMModel           string
	LLMFallbackBaseURL string
	LLMFallbackModel   string
	LLMAcceleration    string
	LLMMaxTokens       int
}

func Load() *Config {
	llmURL := getEnv("LLM_BASE_URL", "http://localhost:8080/v1")
	return &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", "127.0.0.1:8000"),
		HealthAddr:           getEnv("HEALTH_ADDR", "127.0.0.1:50052"),
		DBPath:               getEnv("DB_PATH", "scribe.db"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		CaptureSampleRate:    getEnvInt("CAPTURE_SAMPLE_RATE", 16000),
		CaptureFrames:        getEnvInt("CAPTURE_FRAMES", 1024),
		CaptureDevice:        getEnv("CAPTURE_DEVICE", ""),
		ExcludedAudioDevices: getEnvList("EXCLUDED_AUDIO_DEVICES", []string{"iphone", "teams"}),
		VADEnergyThreshold:   getEnvFloat("VAD_ENERGY_THRESHOLD", 1e-5),
		VADMinChunkSec:       getEnvFloat("VAD_MIN_CHUNK_SEC", 3),
		VADMaxChunkSec:       getEnvFloat("VAD_MAX_CHUNK_SEC", 15),
		VADHangoverSec:       getEnvFloat("VAD_HANGOVER_SEC", 0.6),
		FileChunkSec:         getEnvFloat("FILE_CHUNK_SEC", 15),
		RecentWindowSegments: getEnvInt("RECENT_WINDOW_SEGMENTS", 60),
		ASRBaseURL:           getEnv("ASR_BASE_URL", llmURL),
		ASRModel:             getEnv("ASR_MODEL", "whisper-base.en"),
		ASRLanguage:          getEnv("ASR_LANGUAGE", "en"),
		LLMBaseURL:           llmURL,
		LLMAPIKey:            getEnv("LLM_API_KEY", ""),
		LLMModel:             getEnv("LLM_MODEL", "Llama-3.2-1B-Instruct"),
		LLMFallbackBaseURL:   getEnv("LLM_FALLBACK_BASE_URL", llmURL),
		LLMFallbackModel:     getEnv("LLM_FALLBACK_MODEL", "LaMini-Flan-T5-248M"),
		LLMAcceleration:      strings.ToLower(getEnv("LLM_ACCELERATION", AccelAuto)),
		LLMMaxTokens:         getEnvInt("LLM_MAX_TOKENS", 256),
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.CaptureSampleRate <= 0:
		return apperrors.Newf(apperrors.ConfigInvalid, "CAPTURE_SAMPLE_RATE must be positive (got %d)", c.CaptureSampleRate)
	case c.CaptureFrames <= 0:
		return apperrors.Newf(apperrors.ConfigInvalid, "CAPTURE_FRAMES must be positive (got %d)", c.CaptureFrames)
	case c.VADMinChunkSec <= 0 || c.VADMaxChunkSec <= c.VADMinChunkSec:
		return apperrors.Newf(apperrors.ConfigInvalid, "VAD chunk bounds invalid: min=%g max=%g", c.VADMinChunkSec, c.VADMaxChunkSec)
	case c.VADHangoverSec <= 0:
		return apperrors.Newf(apperrors.ConfigInvalid, "VAD_HANGOVER_SEC must be positive (got %g)", c.VADHangoverSec)
	case c.FileChunkSec <= 0:
		return apperrors.Newf(apperrors.ConfigInvalid, "FILE_CHUNK_SEC must be positive (got %g)", c.FileChunkSec)
	case c.RecentWindowSegments <= 0:
		return apperrors.Newf(apperrors.ConfigInvalid, "RECENT_WINDOW_SEGMENTS must be positive (got %d)", c.RecentWindowSegments)
	}
	switch c.LLMAcceleration {
	case AccelAuto, AccelOn, AccelOff:
	default:
		return apperrors.Newf(apperrors.ConfigInvalid, "LLM_ACCELERATION must be one of auto, on, off (got %q)", c.LLMAcceleration)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog levels.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadEnvFiles loads .env style files into the process environment.
// Variables already set are not overridden.
func LoadEnvFiles() []string {
	files := []string{".env", "scribe.env"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".config", "scribe.env"))
	}

	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("failed to load env file", "file", f, "error", err)
			continue
		}
		loaded = append(loaded, f)
	}
	return loaded
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
