// Package health serves the gRPC health protocol for the pipeline's model
// boundaries and queries it from the command line.
package health

import "time"

const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second
	MinClientPingInterval   = 5 * time.Second

	// Health check configuration
	DefaultCheckInterval = 5 * time.Second
	CheckTimeout         = 2 * time.Second
)

// Service names reported by the health server. The empty name is the
// overall status.
const (
	ServiceASR        = "scribe.asr"
	ServiceSummarizer = "scribe.summarizer"
)
