package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, which keeps callers free of nil checks.
type Metrics struct {
	registry *prometheus.Registry

	// Transcription metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec
	ChunksProcessed       prometheus.Counter
	ChunkCalls            *prometheus.CounterVec
	UploadSize            prometheus.Histogram
	ProviderFallbacks     prometheus.Counter

	// Job metrics
	JobsEnqueued prometheus.Counter
	JobsFinished *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TranscriptionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperapi_transcriptions_total",
			Help: "Transcription requests by provider and outcome",
		}, []string{"provider", "outcome"}),
		TranscriptionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whisperapi_transcription_duration_seconds",
			Help:    "Wall-clock time of a transcription request",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		}, []string{"format"}),
		ChunksProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperapi_chunks_processed_total",
			Help: "Audio chunks successfully transcribed",
		}),
		ChunkCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperapi_provider_calls_total",
			Help: "Per-chunk provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		UploadSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisperapi_upload_size_megabytes",
			Help:    "Size of accepted uploads",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 11), // 256KB to 256MB
		}),
		ProviderFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperapi_provider_fallbacks_total",
			Help: "Requests for the primary provider served by the direct provider",
		}),

		JobsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperapi_jobs_enqueued_total",
			Help: "Asynchronous transcription jobs enqueued",
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperapi_jobs_finished_total",
			Help: "Asynchronous transcription jobs finished by status",
		}, []string{"status"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperapi_http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whisperapi_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveTranscription(provider, format, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(provider, outcome).Inc()
	m.TranscriptionDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveChunk(provider string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ChunkCalls.WithLabelValues(provider, "error").Inc()
		return
	}
	m.ChunkCalls.WithLabelValues(provider, "ok").Inc()
	m.ChunksProcessed.Inc()
}

func (m *Metrics) ObserveUpload(sizeMB float64) {
	if m == nil {
		return
	}
	m.UploadSize.Observe(sizeMB)
}

func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.ProviderFallbacks.Inc()
}

func (m *Metrics) ObserveJobEnqueued() {
	if m == nil {
		return
	}
	m.JobsEnqueued.Inc()
}

func (m *Metrics) ObserveJobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
