// Package transcribe owns the speech-to-text boundary. A Worker runs the
// engine on its own goroutine and serves requests over channels, so
// inference never runs on the capture or HTTP goroutines.
package transcribe

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/resilience"
)

// SampleRate is the rate engines receive audio at.
const SampleRate = 16000

// Result is an engine's output for one chunk.
type Result struct {
	Text       string
	Confidence float64
}

// Engine is a speech-to-text model. Implementations need not be safe for
// concurrent use; the Worker serializes every call.
type Engine interface {
	Load(ctx context.Context) error
	Transcribe(ctx context.Context, pcm []float32) (Result, error)
	Close() error
}

type op int

const (
	opLoad op = iota
	opTranscribe
)

type request struct {
	op    op
	ctx   context.Context
	pcm   []float32
	reply chan response
}

type response struct {
	result Result
	err    error
}

// Worker is the actor that owns an Engine.
type Worker struct {
	engine    Engine
	retry     resilience.RetryConfig
	reqCh     chan request
	done      chan struct{}
	stopped   chan struct{}
	ready     atomic.Bool
	closeOnce sync.Once
}

// NewWorker starts the actor goroutine. The engine is not loaded until Init.
func NewWorker(engine Engine, retry resilience.RetryConfig) *Worker {
	w := &Worker{
		engine:  engine,
		retry:   retry,
		reqCh:   make(chan request),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.reqCh:
			req.reply <- w.handle(req)
		case <-w.done:
			if err := w.engine.Close(); err != nil {
				slog.Warn("speech engine close failed", "error", err)
			}
			return
		}
	}
}

func (w *Worker) handle(req request) response {
	switch req.op {
	case opLoad:
		if w.ready.Load() {
			return response{}
		}
		err := resilience.Retry(req.ctx, w.retry, func() error {
			return w.engine.Load(req.ctx)
		})
		if err != nil {
			return response{err: apperrors.Wrap(err, apperrors.Unavailable, "speech model failed to load")}
		}
		w.ready.Store(true)
		return response{}
	default:
		if !w.ready.Load() {
			return response{err: errNotReady}
		}
		res, err := w.engine.Transcribe(req.ctx, req.pcm)
		if err != nil {
			return response{err: apperrors.Wrap(err, apperrors.AudioTranscriptionFailed, "transcription failed")}
		}
		return response{result: res}
	}
}

var errNotReady = apperrors.New(apperrors.NotReady, "speech model not initialized")

// Init loads the engine. Calls after a successful Init are no-ops.
func (w *Worker) Init(ctx context.Context) error {
	if w.ready.Load() {
		return nil
	}
	_, err := w.call(ctx, request{op: opLoad, ctx: ctx})
	return err
}

// Ready reports whether Init has completed.
func (w *Worker) Ready() bool { return w.ready.Load() }

// Transcribe converts pcm, which starts t0 seconds into the recording,
// into a Segment. The worker takes ownership of pcm.
func (w *Worker) Transcribe(ctx context.Context, pcm []float32, t0 float64) (transcript.Segment, error) {
	if !w.ready.Load() {
		return transcript.Segment{}, errNotReady
	}
	res, err := w.call(ctx, request{op: opTranscribe, ctx: ctx, pcm: pcm})
	if err != nil {
		return transcript.Segment{}, err
	}
	return transcript.Segment{
		T0:         t0,
		T1:         t0 + float64(len(pcm))/SampleRate,
		Text:       strings.TrimSpace(res.Text),
		Confidence: res.Confidence,
	}, nil
}

func (w *Worker) call(ctx context.Context, req request) (Result, error) {
	req.reply = make(chan response, 1)
	select {
	case w.reqCh <- req:
	case <-ctx.Done():
		return Result{}, apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "transcription request cancelled")
	case <-w.done:
		return Result{}, apperrors.New(apperrors.Unavailable, "transcription worker closed")
	}
	select {
	case resp := <-req.reply:
		return resp.result, resp.err
	case <-ctx.Done():
		return Result{}, apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "transcription request cancelled")
	}
}

// Close stops the actor and releases the engine.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.done) })
	<-w.stopped
}
