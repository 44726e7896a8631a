package orchestrator

import (
	"context"
	"io"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/audio"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/config"
	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/llm"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/metrics"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator/vad"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/session"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/summary"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/syncx"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/trace"
)

// ErrBusy is returned when a source starts while another is running.
var ErrBusy = apperrors.New(apperrors.Busy, "a recording is already in progress")

// FrameSource supplies captured audio. Frames is closed once Stop is
// called or the device fails.
type FrameSource interface {
	Start(ctx context.Context) error
	Frames() <-chan audio.Frame
	Stop()
}

// Transcriber is the speech boundary.
type Transcriber interface {
	Init(ctx context.Context) error
	Ready() bool
	Transcribe(ctx context.Context, pcm []float32, t0 float64) (transcript.Segment, error)
}

// Mode is what the pipeline is currently fed by.
type Mode string

const (
	ModeIdle Mode = "idle"
	ModeLive Mode = "live"
	ModeFile Mode = "file"
)

// State is a point-in-time view for clients.
type State struct {
	Mode       Mode    `json:"mode"`
	Segments   int     `json:"segments"`
	Elapsed    float64 `json:"elapsed"`
	Queued     int     `json:"queued"`
	Ready      bool    `json:"ready"`
	HasSummary bool    `json:"hasSummary"`
}

// Snapshot is the current recording as exported or saved.
type Snapshot struct {
	Title    string               `json:"title"`
	Segments []transcript.Segment `json:"segments"`
	Summary  *summary.Summary     `json:"summary,omitempty"`
	// Text is the plain transcript; Transcript has one timed line per
	// segment.
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
}

// Config tunes the pipeline.
type Config struct {
	VAD          vad.Config
	FileChunkSec float64
	RecentWindow int
	EventBuffer  int
}

// ConfigFrom maps application config onto pipeline settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		VAD: vad.Config{
			EnergyThreshold: cfg.VADEnergyThreshold,
			MinChunkSec:     cfg.VADMinChunkSec,
			MaxChunkSec:     cfg.VADMaxChunkSec,
			HangoverSec:     cfg.VADHangoverSec,
		},
		FileChunkSec: cfg.FileChunkSec,
		RecentWindow: cfg.RecentWindowSegments,
	}
}

// Deps are the collaborators the pipeline drives. Sessions and NewSource
// may be nil; saving or live capture then fail.
type Deps struct {
	ASR        Transcriber
	Summarizer llm.Completer
	Sessions   session.Store
	Metrics    *metrics.Metrics
	NewSource  func() FrameSource
}

type run struct {
	mode     Mode
	source   FrameSource // set once the source is started
	queue    *syncx.Queue[vad.Chunk]
	done     chan struct{}
	stopping bool
}

// Manager owns one recording at a time and runs its cycles strictly in
// order: transcribe, append, prompt, summarize, validate.
type Manager struct {
	cfg  Config
	deps Deps

	store   transcript.Store
	summary *syncx.RWGuard[*summary.Summary]
	offset  *syncx.RWGuard[float64]
	run     *syncx.RWGuard[run]

	summaryCh chan summary.Summary
	stateCh   chan State
}

func New(cfg Config, deps Deps) *Manager {
	if cfg.FileChunkSec <= 0 {
		cfg.FileChunkSec = DefaultFileChunkSec
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = transcript.DefaultWindow
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Manager{
		cfg:       cfg,
		deps:      deps,
		store:     transcript.NewStore(cfg.EventBuffer),
		summary:   syncx.NewGuard[*summary.Summary](nil),
		offset:    syncx.NewGuard(0.0),
		run:       syncx.NewGuard(run{mode: ModeIdle}),
		summaryCh: make(chan summary.Summary, cfg.EventBuffer),
		stateCh:   make(chan State, cfg.EventBuffer),
	}
}

// TranscriptEvents returns channel for appended segments.
func (m *Manager) TranscriptEvents() <-chan transcript.Event {
	return m.store.Events()
}

// SummaryEvents returns channel for accepted summaries.
func (m *Manager) SummaryEvents() <-chan summary.Summary {
	return m.summaryCh
}

// StateEvents returns channel for mode changes.
func (m *Manager) StateEvents() <-chan State {
	return m.stateCh
}

// begin claims the pipeline for mode.
func (m *Manager) begin(mode Mode) error {
	return m.run.Modify(func(r *run) error {
		if r.mode != ModeIdle {
			return ErrBusy
		}
		*r = run{mode: mode, done: make(chan struct{})}
		return nil
	})
}

// finish returns the pipeline to idle and releases waiters.
func (m *Manager) finish() {
	r := m.run.Swap(run{mode: ModeIdle})
	if r.done != nil {
		close(r.done)
	}
	m.emitState()
}

func (m *Manager) resetSession() {
	m.store.Reset()
	m.summary.Set(nil)
	m.offset.Set(0)
}

// StartLive opens the frame source and starts a live recording. The
// recording outlives ctx; end it with StopLive.
func (m *Manager) StartLive(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "start_live")
	defer span.End()

	if m.deps.NewSource == nil {
		err := apperrors.New(apperrors.AudioCaptureFailed, "no audio source configured")
		span.SetError(err)
		return err
	}
	if err := m.begin(ModeLive); err != nil {
		span.SetError(err)
		return err
	}
	done := m.run.Get().done
	if err := m.deps.ASR.Init(ctx); err != nil {
		span.SetError(err)
		m.finish()
		return err
	}
	if m.run.Get().stopping {
		m.finish()
		err := apperrors.New(apperrors.Cancelled, "recording stopped before capture started")
		span.SetError(err)
		return err
	}

	runCtx := context.WithoutCancel(ctx)
	src := m.deps.NewSource()
	if err := src.Start(runCtx); err != nil {
		span.SetError(err)
		m.finish()
		return apperrors.Wrap(err, apperrors.AudioCaptureFailed, "failed to start audio capture")
	}

	m.resetSession()
	queue := syncx.NewQueue[vad.Chunk]()
	seg := vad.New(m.cfg.VAD, func(c vad.Chunk) {
		queue.Push(c)
		m.deps.Metrics.QueueDepth.Set(float64(queue.Len()))
	})

	go m.capture(src, seg, queue)
	go func() {
		m.drain(runCtx, queue)
		src.Stop()
		m.finish()
		trace.Logger(runCtx).Info("live recording finished", "segments", m.store.Len())
	}()

	// A stop that raced the start found no source to stop.
	var stopped bool
	m.run.Write(func(r *run) {
		if r.done != done {
			stopped = true
			return
		}
		r.source, r.queue = src, queue
		stopped = r.stopping
	})
	if stopped {
		src.Stop()
		trace.Logger(ctx).Info("live recording stopped during startup")
		return nil
	}

	trace.Logger(ctx).Info("live recording started")
	m.emitState()
	return nil
}

// capture feeds resampled frames to the segmenter until the source
// closes, then flushes a voiced tail and closes the queue.
func (m *Manager) capture(src FrameSource, seg *vad.Segmenter, queue *syncx.Queue[vad.Chunk]) {
	var rs *audio.Resampler
	for f := range src.Frames() {
		if rs == nil {
			rs = audio.NewResampler(f.SampleRate)
		}
		seg.Push(rs.Process(f.Data))
	}
	if tail, ok := seg.Flush(); ok {
		queue.Push(tail)
	}
	queue.Close()
}

func (m *Manager) drain(ctx context.Context, queue *syncx.Queue[vad.Chunk]) {
	for {
		c, ok := queue.Pop(ctx)
		if !ok {
			return
		}
		m.deps.Metrics.QueueDepth.Set(float64(queue.Len()))
		m.cycle(ctx, c.PCM, sourceLive)
	}
}

// StopLive stops capture and waits until queued chunks are processed or
// ctx ends. Results of chunks still in flight are kept. It is a no-op
// when no live recording is running.
func (m *Manager) StopLive(ctx context.Context) error {
	var r run
	m.run.Write(func(cur *run) {
		if cur.mode == ModeLive {
			cur.stopping = true
		}
		r = *cur
	})
	if r.mode != ModeLive {
		return nil
	}
	if r.source != nil {
		r.source.Stop()
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.Timeout, "recording is still draining")
	}
}

// DecodeUpload decodes a WAV upload to 16 kHz mono. Nothing is reset when
// decoding fails.
func (m *Manager) DecodeUpload(r io.ReadSeeker) ([]float32, error) {
	pcm, rate, err := audio.DecodeWAV(r)
	if err != nil {
		return nil, err
	}
	return audio.Resample(pcm, rate), nil
}

// TranscribePCM replaces the current recording with pcm and processes it
// window by window before returning.
func (m *Manager) TranscribePCM(ctx context.Context, pcm []float32) error {
	if err := m.begin(ModeFile); err != nil {
		return err
	}
	defer m.finish()
	return m.processFile(ctx, pcm)
}

// StartFile is TranscribePCM in the background. Busy is reported
// synchronously.
func (m *Manager) StartFile(ctx context.Context, pcm []float32) error {
	if err := m.begin(ModeFile); err != nil {
		return err
	}
	m.emitState()
	go func() {
		defer m.finish()
		runCtx := context.WithoutCancel(ctx)
		if err := m.processFile(runCtx, pcm); err != nil {
			trace.Logger(runCtx).Warn("file transcription failed", "error", err)
		}
	}()
	return nil
}

func (m *Manager) processFile(ctx context.Context, pcm []float32) error {
	ctx, span := trace.StartSpan(ctx, "transcribe_file", "samples", len(pcm))
	defer span.End()

	if err := m.deps.ASR.Init(ctx); err != nil {
		span.SetError(err)
		return err
	}
	m.resetSession()

	size := max(int(m.cfg.FileChunkSec*audio.TargetRate), 1)
	for i := 0; i < len(pcm); i += size {
		if err := ctx.Err(); err != nil {
			span.SetError(err)
			return apperrors.Wrap(err, apperrors.Cancelled, "file transcription cancelled")
		}
		m.cycle(ctx, slices.Clone(pcm[i:min(i+size, len(pcm))]), sourceFile)
	}
	trace.Logger(ctx).Info("file transcribed", "seconds", audio.Seconds(len(pcm)), "segments", m.store.Len())
	return nil
}

// cycle runs one chunk through transcription and summarization. Failures
// are isolated to the cycle: a failed transcription drops the chunk
// without advancing the clock, a failed summary keeps the previous one.
func (m *Manager) cycle(ctx context.Context, pcm []float32, source string) {
	ctx, span := trace.StartSpan(ctx, "pipeline_cycle", "source", source, "samples", len(pcm))
	defer func() {
		span.End()
		m.deps.Metrics.CycleSeconds.Observe(span.Duration().Seconds())
	}()

	log := trace.Logger(ctx)
	m.deps.Metrics.Chunks.WithLabelValues(source).Inc()

	seg, err := m.deps.ASR.Transcribe(ctx, pcm, m.offset.Get())
	if err != nil {
		span.SetError(err)
		m.deps.Metrics.TranscriptionFailures.Inc()
		log.Warn("transcription failed, dropping chunk", "source", source, "error", err)
		return
	}
	m.offset.Set(seg.T1)
	idx := m.store.Append(seg)
	m.deps.Metrics.Segments.Inc()
	m.store.Emit(transcript.Event{Segment: seg, Index: idx})
	log.Debug("segment appended", "index", idx, "t0", seg.T0, "t1", seg.T1)

	m.summarize(ctx)
}

func (m *Manager) summarize(ctx context.Context) {
	if m.deps.Summarizer == nil {
		return
	}
	log := trace.Logger(ctx)
	prompt := summary.BuildPrompt(m.store.RecentWindow(m.cfg.RecentWindow))

	raw, err := m.deps.Summarizer.Complete(ctx, prompt)
	if err != nil {
		m.deps.Metrics.SummarizerErrors.Inc()
		log.Warn("summarizer failed, keeping previous summary", "error", err)
		return
	}
	s, ok := summary.Parse(raw)
	if !ok {
		m.deps.Metrics.ParseFailures.Inc()
		log.Debug("summary rejected by validator", "output_len", len(raw))
		return
	}
	m.summary.Set(&s)
	m.deps.Metrics.SummaryUpdates.Inc()
	select {
	case m.summaryCh <- s:
	default:
	}
}

// Save writes the current recording as one session. It refuses while a
// source is running or when nothing was transcribed.
func (m *Manager) Save(ctx context.Context) (session.Session, error) {
	if m.deps.Sessions == nil {
		return session.Session{}, apperrors.New(apperrors.StoreFailed, "no session store configured")
	}
	if m.run.Get().mode != ModeIdle {
		return session.Session{}, ErrBusy
	}
	snap := m.Snapshot()
	if len(snap.Segments) == 0 {
		return session.Session{}, apperrors.New(apperrors.InvalidArgument, "nothing to save")
	}

	sess := session.Session{
		ID:          uuid.NewString(),
		Title:       snap.Title,
		CreatedAt:   time.Now().UTC(),
		DurationSec: int(math.Floor(m.store.End())),
		Segments:    snap.Segments,
		Summary:     snap.Summary,
	}
	if err := m.deps.Sessions.Create(ctx, &sess); err != nil {
		return session.Session{}, err
	}
	trace.Logger(ctx).Info("session saved", "id", sess.ID, "segments", len(sess.Segments))
	return sess, nil
}

// Summary returns the last accepted summary, or nil.
func (m *Manager) Summary() *summary.Summary {
	s := m.summary.Get()
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Snapshot copies the current recording.
func (m *Manager) Snapshot() Snapshot {
	s := m.Summary()
	return Snapshot{
		Title:      TitleOf(s),
		Segments:   m.store.Segments(),
		Summary:    s,
		Text:       m.store.FullText(),
		Transcript: m.store.TimedText(),
	}
}

// TitleOf returns the summary title or DefaultTitle.
func TitleOf(s *summary.Summary) string {
	if s != nil && s.Title != "" {
		return s.Title
	}
	return DefaultTitle
}

func (m *Manager) State() State {
	r := m.run.Get()
	st := State{
		Mode:       r.mode,
		Segments:   m.store.Len(),
		Elapsed:    m.offset.Get(),
		Ready:      m.deps.ASR != nil && m.deps.ASR.Ready(),
		HasSummary: m.summary.Get() != nil,
	}
	if r.queue != nil {
		st.Queued = r.queue.Len()
	}
	return st
}

func (m *Manager) emitState() {
	select {
	case m.stateCh <- m.State():
	default:
	}
}

// Close stops a live recording without waiting for it to drain.
func (m *Manager) Close() {
	if r := m.run.Get(); r.source != nil {
		r.source.Stop()
	}
}
