// Package trace carries W3C-style trace and span ids through pipeline
// cycles, HTTP requests and gRPC calls, and times spans into the log.
package trace

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Propagation keys, shared by HTTP headers and gRPC metadata.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context identifies one span within a trace.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New starts a fresh trace.
func New() Context {
	return Context{TraceID: generateTraceID(), SpanID: generateSpanID()}
}

// NewChild opens a span under parent.
func NewChild(parent Context) Context {
	return Context{TraceID: parent.TraceID, SpanID: generateSpanID(), ParentSpanID: parent.SpanID}
}

func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns the trace already on ctx or starts one.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// 128-bit trace ids and 64-bit span ids, hex encoded.
func generateTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func generateSpanID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// ToMap exports the ids for outgoing gRPC metadata.
func (c Context) ToMap() map[string]string {
	m := map[string]string{TraceIDKey: c.TraceID, SpanIDKey: c.SpanID}
	if c.ParentSpanID != "" {
		m[ParentSpanIDKey] = c.ParentSpanID
	}
	return m
}

// FromMap continues a caller's trace: the caller's span becomes the
// parent of a new span. A missing trace id starts a new trace.
func FromMap(m map[string]string) Context {
	tc := Context{TraceID: m[TraceIDKey], SpanID: generateSpanID(), ParentSpanID: m[SpanIDKey]}
	if tc.TraceID == "" {
		tc.TraceID = generateTraceID()
	}
	return tc
}

func (c Context) attrs() []any {
	out := []any{"trace_id", c.TraceID, "span_id", c.SpanID}
	if c.ParentSpanID != "" {
		out = append(out, "parent_span_id", c.ParentSpanID)
	}
	return out
}

// Span is one timed operation: a pipeline cycle, a request, a model call.
type Span struct {
	Name      string
	Ctx       Context
	StartTime time.Time
	EndTime   time.Time
	Attrs     map[string]any
	Err       error
}

// StartSpan opens a span under whatever trace ctx carries. kv are
// initial attributes as alternating keys and values.
func StartSpan(ctx context.Context, name string, kv ...any) (context.Context, *Span) {
	tc := New()
	if parent, ok := FromContext(ctx); ok && parent.TraceID != "" {
		tc = NewChild(parent)
	}
	s := &Span{Name: name, Ctx: tc, StartTime: time.Now(), Attrs: make(map[string]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			s.Attrs[key] = kv[i+1]
		}
	}
	return WithContext(ctx, tc), s
}

// End stamps the span and logs it: debug when it succeeded, warn when an
// error was recorded.
func (s *Span) End() {
	s.EndTime = time.Now()
	if s.Err != nil {
		slog.Warn("span failed", "span", s, "error", s.Err)
		return
	}
	slog.Debug("span complete", "span", s)
}

func (s *Span) SetError(err error) { s.Err = err }

func (s *Span) SetAttr(key string, val any) { s.Attrs[key] = val }

// Duration is zero until End is called.
func (s *Span) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("span_name", s.Name),
		slog.Duration("duration", s.Duration()),
	}
	attrs = append(attrs, slog.Group("", s.Ctx.attrs()...).Value.Group()...)
	for k, v := range s.Attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}

// Logger returns the default logger annotated with the trace on ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With(tc.attrs()...)
}
