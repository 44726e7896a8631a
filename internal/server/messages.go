package server

import (
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/summary"
)

// CommandMessage is sent by clients: "start", "stop" or "state".
type CommandMessage struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

type SegmentMessage struct {
	Type    string             `json:"type"`
	Index   int                `json:"index"`
	Segment transcript.Segment `json:"segment"`
}

type SummaryMessage struct {
	Type    string          `json:"type"`
	Summary summary.Summary `json:"summary"`
}

type StateMessage struct {
	Type  string             `json:"type"`
	State orchestrator.State `json:"state"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FormatRequest is the body of POST /api/format.
type FormatRequest struct {
	Text string `json:"text"`
}

type FormatResponse struct {
	Text  string `json:"text"`
	Model bool   `json:"model"`
}

type errorBody struct {
	Error ErrorMessage `json:"error"`
}
