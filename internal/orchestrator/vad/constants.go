// Package vad splits a 16 kHz sample stream into speech-bounded chunks.
package vad

// Segmenter defaults.
const (
	// FrameSamples is the fixed analysis block size.
	FrameSamples = 128

	// EnergyThreshold is the mean-square energy above which a frame is voiced.
	EnergyThreshold = 1e-5

	// MinChunkSec is the buffered duration required before a silence flush.
	MinChunkSec = 3.0

	// MaxChunkSec is the hard cap on buffered duration.
	MaxChunkSec = 15.0

	// HangoverSec is the silence after the last voiced frame that ends a chunk.
	HangoverSec = 0.6

	sampleRate = 16000
)
