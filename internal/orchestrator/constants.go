// Package orchestrator runs the chunk to transcript to summary pipeline
// for live and file sources.
package orchestrator

const (
	// DefaultTitle names a session whose summary has no title.
	DefaultTitle = "PrivateScribe session"

	// File uploads are cut into fixed windows of this length.
	DefaultFileChunkSec = 15

	// Capacity of the segment, summary and state event channels.
	DefaultEventBuffer = 100
)

// Chunk source labels for metrics and logs.
const (
	sourceLive = "live"
	sourceFile = "file"
)
