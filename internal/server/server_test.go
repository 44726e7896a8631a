package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/session"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/summary"
)

// fakePipeline records calls and returns canned results.
type fakePipeline struct {
	mu       sync.Mutex
	mode     orchestrator.Mode
	startErr error
	// startGate, when set, holds StartLive until closed.
	startGate chan struct{}
	stops     int
	decodeErr error
	saved     session.Session
	saveErr   error
	filePCM   []float32
	snapshot  orchestrator.Snapshot

	transcripts chan transcript.Event
	summaries   chan summary.Summary
	states      chan orchestrator.State
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		mode:        orchestrator.ModeIdle,
		transcripts: make(chan transcript.Event, 10),
		summaries:   make(chan summary.Summary, 10),
		states:      make(chan orchestrator.State, 10),
	}
}

func (p *fakePipeline) StartLive(context.Context) error {
	if p.startGate != nil {
		<-p.startGate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.mode = orchestrator.ModeLive
	return nil
}

func (p *fakePipeline) StopLive(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.mode = orchestrator.ModeIdle
	return nil
}

func (p *fakePipeline) DecodeUpload(r io.ReadSeeker) ([]float32, error) {
	if p.decodeErr != nil {
		return nil, p.decodeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return make([]float32, len(data)), nil
}

func (p *fakePipeline) StartFile(_ context.Context, pcm []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filePCM = pcm
	p.mode = orchestrator.ModeFile
	return nil
}

func (p *fakePipeline) Save(context.Context) (session.Session, error) {
	return p.saved, p.saveErr
}

func (p *fakePipeline) State() orchestrator.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return orchestrator.State{Mode: p.mode, Ready: true}
}

func (p *fakePipeline) Snapshot() orchestrator.Snapshot { return p.snapshot }

func (p *fakePipeline) TranscriptEvents() <-chan transcript.Event { return p.transcripts }
func (p *fakePipeline) SummaryEvents() <-chan summary.Summary     { return p.summaries }
func (p *fakePipeline) StateEvents() <-chan orchestrator.State    { return p.states }

type fakeFormatter struct{}

func (fakeFormatter) Format(_ context.Context, raw string) (string, bool) {
	return strings.ToUpper(raw), true
}

func newTestServer(t *testing.T) (*Server, *fakePipeline, *session.SQLStore) {
	t.Helper()
	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	p := newFakePipeline()
	s := New(Deps{Pipeline: p, Sessions: store, Formatter: fakeFormatter{}})
	return s, p, store
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorMessage {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Test OPTIONS request
	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, DELETE, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, DELETE, OPTIONS")
	}

	// Test regular request
	req = httptest.NewRequest("GET", "/test", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin on GET = %q, want %q", v, "*")
	}
}

func TestRateLimiter(t *testing.T) {
	var r rateLimiter
	for i := 0; i < RateLimitMessages; i++ {
		if !r.allow() {
			t.Fatalf("message %d rejected under the limit", i)
		}
	}
	if r.allow() {
		t.Error("message over the limit should be rejected")
	}

	// Age every recorded timestamp out of the window.
	r.mu.Lock()
	for i := range r.timestamps {
		r.timestamps[i] = r.timestamps[i].Add(-2 * RateLimitWindow)
	}
	r.mu.Unlock()
	if !r.allow() {
		t.Error("limiter should recover once the window passes")
	}
}

func TestLiveStartStop(t *testing.T) {
	s, p, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, "POST", "/api/live/start", http.NoBody, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	var st orchestrator.State
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil || st.Mode != orchestrator.ModeLive {
		t.Errorf("start state = %+v (%v)", st, err)
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Error("responses should carry a trace id")
	}

	p.startErr = apperrors.New(apperrors.Busy, "a recording is already running")
	rec = do(t, h, "POST", "/api/live/start", http.NoBody, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("busy status = %d, want 409", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "BUSY" {
		t.Errorf("error code = %q, want BUSY", e.Code)
	}

	rec = do(t, h, "POST", "/api/live/stop", http.NoBody, "")
	if rec.Code != http.StatusOK || p.State().Mode != orchestrator.ModeIdle {
		t.Errorf("stop status = %d mode = %s", rec.Code, p.State().Mode)
	}
}

func uploadBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "meeting.wav")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	s, p, _ := newTestServer(t)
	h := s.Handler()

	body, ct := uploadBody(t, "file", []byte("RIFF1234"))
	rec := do(t, h, "POST", "/api/upload", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	if len(p.filePCM) != 8 {
		t.Errorf("pipeline got %d samples, want 8", len(p.filePCM))
	}

	body, ct = uploadBody(t, "other", []byte("x"))
	if rec = do(t, h, "POST", "/api/upload", body, ct); rec.Code != http.StatusBadRequest {
		t.Errorf("missing field status = %d, want 400", rec.Code)
	}

	p.decodeErr = apperrors.New(apperrors.AudioDecodeFailed, "not a wav")
	body, ct = uploadBody(t, "file", []byte("junk"))
	rec = do(t, h, "POST", "/api/upload", body, ct)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad audio status = %d, want 422", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "AUDIO_DECODE_FAILED" || e.Message != "not a wav" {
		t.Errorf("error = %+v", e)
	}
}

func TestSessions(t *testing.T) {
	s, p, store := newTestServer(t)
	h := s.Handler()

	sum := &summary.Summary{Title: "Budget sync", KeyPoints: []string{"freeze"}}
	p.saved = session.Session{
		ID:        "abc",
		Title:     "Budget sync",
		CreatedAt: time.Now(),
		Segments:  []transcript.Segment{{T0: 0, T1: 15, Text: "we freeze the budget"}},
		Summary:   sum,
	}
	if err := store.Create(context.Background(), &p.saved); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := do(t, h, "POST", "/api/sessions", http.NoBody, "")
	if rec.Code != http.StatusCreated {
		t.Errorf("save status = %d", rec.Code)
	}

	rec = do(t, h, "GET", "/api/sessions", http.NoBody, "")
	var list []session.Session
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil || len(list) != 1 {
		t.Fatalf("list = %+v (%v)", list, err)
	}

	rec = do(t, h, "GET", "/api/sessions/abc", http.NoBody, "")
	var got session.Session
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil || got.Summary == nil || got.Summary.Title != "Budget sync" {
		t.Errorf("get = %+v (%v)", got, err)
	}

	rec = do(t, h, "GET", "/api/sessions/abc/export.md", http.NoBody, "")
	if !strings.Contains(rec.Body.String(), "00:00–00:15 we freeze the budget") {
		t.Errorf("markdown export missing transcript:\n%s", rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Budget sync.md") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = do(t, h, "GET", "/api/sessions/abc/export.html", http.NoBody, "")
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") || !strings.Contains(rec.Body.String(), "freeze") {
		t.Errorf("html export = %s", rec.Body)
	}

	if rec = do(t, h, "DELETE", "/api/sessions/abc", http.NoBody, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec = do(t, h, "GET", "/api/sessions/abc", http.NoBody, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
	if rec = do(t, h, "DELETE", "/api/sessions/abc", http.NoBody, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestSaveErrors(t *testing.T) {
	s, p, _ := newTestServer(t)
	p.saveErr = apperrors.New(apperrors.InvalidArgument, "nothing to save")

	rec := do(t, s.Handler(), "POST", "/api/sessions", http.NoBody, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestExportCurrent(t *testing.T) {
	s, p, _ := newTestServer(t)
	p.snapshot = orchestrator.Snapshot{
		Title:      "Standup",
		Segments:   []transcript.Segment{{T0: 0, T1: 4, Text: "hello"}},
		Transcript: "00:00–00:04 hello",
	}

	rec := do(t, s.Handler(), "GET", "/api/export.md", http.NoBody, "")
	body := rec.Body.String()
	if !strings.HasPrefix(body, "# Standup") || !strings.Contains(body, "00:00–00:04 hello") {
		t.Errorf("export =\n%s", body)
	}
}

func TestFormat(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, "POST", "/api/format", strings.NewReader(`{"text":"hi"}`), "application/json")
	var resp FormatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Text != "HI" || !resp.Model {
		t.Errorf("format = %+v (%v)", resp, err)
	}

	rec = do(t, h, "POST", "/api/format", strings.NewReader(`{`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	do(t, h, "GET", "/api/sessions/missing", http.NoBody, "")
	rec := do(t, h, "GET", "/metrics", http.NoBody, "")
	body := rec.Body.String()
	if !strings.Contains(body, `path="GET /api/sessions/{id}"`) {
		t.Errorf("metrics should label by route pattern:\n%s", body)
	}
	if strings.Contains(body, "/api/sessions/missing") {
		t.Error("raw paths must not become labels")
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebSocket(t *testing.T) {
	s, p, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	if msg := readMessage(t, ctx, conn); msg["type"] != "state" {
		t.Fatalf("first message = %v, want state", msg)
	}

	p.transcripts <- transcript.Event{Index: 0, Segment: transcript.Segment{T0: 0, T1: 3, Text: "hello"}}
	p.summaries <- summary.Summary{Title: "Greeting"}

	msg := readMessage(t, ctx, conn)
	seg, _ := msg["segment"].(map[string]any)
	if msg["type"] != "segment" || seg["text"] != "hello" {
		t.Errorf("segment message = %v", msg)
	}
	msg = readMessage(t, ctx, conn)
	sum, _ := msg["summary"].(map[string]any)
	if msg["type"] != "summary" || sum["title"] != "Greeting" {
		t.Errorf("summary message = %v", msg)
	}

	if err := wsjson.Write(ctx, conn, CommandMessage{Type: "start", TraceID: "t-1"}); err != nil {
		t.Fatal(err)
	}
	msg = readMessage(t, ctx, conn)
	state, _ := msg["state"].(map[string]any)
	if msg["type"] != "state" || state["mode"] != "live" {
		t.Errorf("start reply = %v", msg)
	}

	if err := wsjson.Write(ctx, conn, CommandMessage{Type: "rewind"}); err != nil {
		t.Fatal(err)
	}
	if msg = readMessage(t, ctx, conn); msg["type"] != "error" || msg["code"] != "INVALID_ARGUMENT" {
		t.Errorf("unknown command reply = %v", msg)
	}
}

func TestWebSocketStopWhileStartPending(t *testing.T) {
	s, p, _ := newTestServer(t)
	p.startGate = make(chan struct{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	readMessage(t, ctx, conn)

	if err := wsjson.Write(ctx, conn, CommandMessage{Type: "start"}); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Write(ctx, conn, CommandMessage{Type: "stop"}); err != nil {
		t.Fatal(err)
	}

	// The stop reply arrives while the start is still blocked.
	msg := readMessage(t, ctx, conn)
	if msg["type"] != "state" {
		t.Fatalf("stop reply = %v", msg)
	}
	p.mu.Lock()
	stops := p.stops
	p.mu.Unlock()
	if stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
	close(p.startGate)
	if msg = readMessage(t, ctx, conn); msg["type"] != "state" {
		t.Errorf("start reply = %v", msg)
	}
}
