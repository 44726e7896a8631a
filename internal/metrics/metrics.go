// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scribe"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Chunks                *prometheus.CounterVec
	Segments              prometheus.Counter
	TranscriptionFailures prometheus.Counter
	SummaryUpdates        prometheus.Counter
	ParseFailures         prometheus.Counter
	SummarizerErrors      prometheus.Counter
	CycleSeconds          prometheus.Histogram
	QueueDepth            prometheus.Gauge
	APISeconds            *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "chunks_total",
			Help: "Audio chunks handed to transcription, by source.",
		}, []string{"source"}),
		Segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segments_total",
			Help: "Transcript segments appended.",
		}),
		TranscriptionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transcription_failures_total",
			Help: "Chunks dropped after a transcription error.",
		}),
		SummaryUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "summary_updates_total",
			Help: "Summaries accepted by the validator.",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "summary_parse_failures_total",
			Help: "Model outputs rejected by the validator.",
		}),
		SummarizerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "summarizer_errors_total",
			Help: "Summarizer calls that returned an error.",
		}),
		CycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_seconds",
			Help:    "Duration of one transcribe, append and summarize cycle.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "chunk_queue_depth",
			Help: "Chunks waiting for a cycle.",
		}),
		APISeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_call_seconds",
			Help: "HTTP API latency.",
		}, []string{"method", "path", "code"}),
	}
	reg.MustRegister(
		m.Chunks, m.Segments, m.TranscriptionFailures, m.SummaryUpdates,
		m.ParseFailures, m.SummarizerErrors, m.CycleSeconds, m.QueueDepth, m.APISeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware observes API latency, skipping the metrics endpoint and the
// websocket stream. pattern maps a request to a bounded route label.
func (m *Metrics) Middleware(pattern func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		m.APISeconds.WithLabelValues(r.Method, pattern(r), strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
