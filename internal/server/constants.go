// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection websocket command limit (sliding window)
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Outbound websocket buffer per client; events beyond it are dropped
	ClientSendBuffer = 64
	WriteTimeout     = 5 * time.Second

	// How long a stop request waits for queued chunks to drain
	StopTimeout = 2 * time.Minute

	// Largest accepted audio upload
	MaxUploadBytes = 512 << 20

	// Largest accepted format request body
	MaxFormatBytes = 1 << 20
)
