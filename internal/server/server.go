package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/export"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/metrics"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/session"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/summary"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/trace"
)

// Pipeline is the orchestrator surface the server drives.
type Pipeline interface {
	StartLive(ctx context.Context) error
	StopLive(ctx context.Context) error
	DecodeUpload(r io.ReadSeeker) ([]float32, error)
	StartFile(ctx context.Context, pcm []float32) error
	Save(ctx context.Context) (session.Session, error)
	State() orchestrator.State
	Snapshot() orchestrator.Snapshot
	TranscriptEvents() <-chan transcript.Event
	SummaryEvents() <-chan summary.Summary
	StateEvents() <-chan orchestrator.State
}

// Formatter cleans up raw text; the bool reports model use.
type Formatter interface {
	Format(ctx context.Context, raw string) (string, bool)
}

// Deps are the server's collaborators.
type Deps struct {
	Pipeline  Pipeline
	Sessions  session.Store
	Formatter Formatter
	Metrics   *metrics.Metrics
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// client is one websocket connection with its own ordered outbox.
type client struct {
	send    chan any
	limiter rateLimiter
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	deps    Deps
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

// New creates a new server and starts its event broadcaster.
func New(deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	s := &Server{
		deps:    deps,
		clients: make(map[*websocket.Conn]*client),
	}
	go s.broadcastEvents()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/live/start", s.handleLiveStart)
	mux.HandleFunc("POST /api/live/stop", s.handleLiveStop)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/export.md", s.handleExportCurrent(formatMarkdown))
	mux.HandleFunc("GET /api/export.html", s.handleExportCurrent(formatHTML))
	mux.HandleFunc("POST /api/format", s.handleFormat)

	mux.HandleFunc("POST /api/sessions", s.handleSave)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/export.md", s.handleExportSession(formatMarkdown))
	mux.HandleFunc("GET /api/sessions/{id}/export.html", s.handleExportSession(formatHTML))

	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	// Apply middleware: CORS -> trace -> metrics
	return corsMiddleware(trace.Middleware(s.deps.Metrics.Middleware(routePattern, mux)))
}

// routePattern labels metrics by the matched route, not the raw path.
func routePattern(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorMessage(err error) (int, ErrorMessage) {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.HTTPStatus(), ErrorMessage{Type: "error", Code: appErr.Code.String(), Message: appErr.Message}
	}
	return http.StatusInternalServerError, ErrorMessage{Type: "error", Code: apperrors.Internal.String(), Message: err.Error()}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorMessage(err)
	log := trace.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Pipeline.StartLive(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Pipeline.State())
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), StopTimeout)
	defer cancel()
	if err := s.deps.Pipeline.StopLive(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Pipeline.State())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.InvalidArgument, "multipart field \"file\" required"))
		return
	}
	defer file.Close()

	pcm, err := s.deps.Pipeline.DecodeUpload(file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Pipeline.StartFile(r.Context(), pcm); err != nil {
		writeError(w, r, err)
		return
	}
	trace.Logger(r.Context()).Info("upload accepted", "file", header.Filename, "bytes", header.Size)
	writeJSON(w, http.StatusAccepted, s.deps.Pipeline.State())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Pipeline.State())
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var req FormatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxFormatBytes)).Decode(&req); err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.InvalidArgument, "invalid format request"))
		return
	}
	out, byModel := s.deps.Formatter.Format(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, FormatResponse{Text: out, Model: byModel})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Pipeline.Save(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Sessions.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type exportFormat int

const (
	formatMarkdown exportFormat = iota
	formatHTML
)

func (s *Server) handleExportCurrent(f exportFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.deps.Pipeline.Snapshot()
		writeExport(w, r, f, snap.Title, snap.Transcript, snap.Summary)
	}
}

func (s *Server) handleExportSession(f exportFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.Sessions.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeExport(w, r, f, sess.Title, transcript.TimedLines(sess.Segments), sess.Summary)
	}
}

func writeExport(w http.ResponseWriter, r *http.Request, f exportFormat, title, text string, sum *summary.Summary) {
	if f == formatHTML {
		page, err := export.HTML(title, text, sum)
		if err != nil {
			writeError(w, r, apperrors.Wrap(err, apperrors.Internal, "failed to render export"))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+fileName(title)+`.md"`)
	_, _ = io.WriteString(w, export.Markdown(title, text, sum))
}

// fileName drops characters that would break a Content-Disposition value.
func fileName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\r', '\n':
			return -1
		}
		return r
	}, title)
	if strings.TrimSpace(name) == "" {
		return "session"
	}
	return name
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	baseCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{send: make(chan any, ClientSendBuffer)}
	c.send <- StateMessage{Type: "state", State: s.deps.Pipeline.State()}

	s.mu.Lock()
	s.clients[conn] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	go s.writeLoop(baseCtx, conn, c)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			s.enqueue(c, ErrorMessage{Type: "error", Code: apperrors.Busy.String(), Message: "rate limit exceeded"})
			continue
		}

		var cmd CommandMessage
		if err := json.Unmarshal(msg, &cmd); err != nil {
			continue
		}

		// Commands run off the read loop so a stop is read while a start
		// is still loading models.
		tc, _ := trace.ExtractFromJSON(msg)
		go s.handleCommand(trace.WithContext(baseCtx, tc), c, cmd.Type)
	}
}

func (s *Server) handleCommand(ctx context.Context, c *client, kind string) {
	ctx, span := trace.StartSpan(ctx, "ws_"+kind)
	defer span.End()

	var err error
	switch kind {
	case "start":
		err = s.deps.Pipeline.StartLive(ctx)
	case "stop":
		stopCtx, cancel := context.WithTimeout(ctx, StopTimeout)
		err = s.deps.Pipeline.StopLive(stopCtx)
		cancel()
	case "state":
	default:
		err = apperrors.Newf(apperrors.InvalidArgument, "unknown command %q", kind)
	}
	if err != nil {
		span.SetError(err)
		_, msg := errorMessage(err)
		s.enqueue(c, msg)
		return
	}
	s.enqueue(c, StateMessage{Type: "state", State: s.deps.Pipeline.State()})
}

// writeLoop is the only writer on conn, so events reach a client in the
// order they were produced.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("websocket write error", "error", err)
				}
				return
			}
		}
	}
}

func (s *Server) enqueue(c *client, msg any) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("websocket client too slow, dropping event")
	}
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		s.enqueue(c, msg)
	}
}

func (s *Server) broadcastEvents() {
	p := s.deps.Pipeline
	for {
		select {
		case evt := <-p.TranscriptEvents():
			s.broadcast(SegmentMessage{Type: "segment", Index: evt.Index, Segment: evt.Segment})
		case sum := <-p.SummaryEvents():
			s.broadcast(SummaryMessage{Type: "summary", Summary: sum})
		case st := <-p.StateEvents():
			s.broadcast(StateMessage{Type: "state", State: st})
		}
	}
}
