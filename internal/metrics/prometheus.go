package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the translator service.
// Every Record/Set method is safe to call on a nil *Metrics.
type Metrics struct {
	// UDP packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter

	// Ingest stream metrics
	ActiveStreams    prometheus.Gauge
	StreamsCreated   prometheus.Counter
	StreamsDestroyed prometheus.Counter
	StreamDuration   prometheus.Histogram

	// Pipeline metrics
	PipelineState    prometheus.Gauge
	RunsStarted      prometheus.Counter
	DeviceErrors     prometheus.Counter
	QueueSize        prometheus.Gauge
	ChunksDropped    prometheus.Counter
	ChunksDiscarded  prometheus.Counter
	ChunksCaptured   prometheus.Counter
	ChunksSilent     prometheus.Counter
	ChunkDuration    prometheus.Histogram
	ChunkSize        prometheus.Histogram
	ResultsEmitted   prometheus.Counter
	ChunkLatency     prometheus.Histogram

	// Recognition metrics
	RecognitionRequests  prometheus.Counter
	RecognitionSuccesses prometheus.Counter
	RecognitionFailures  prometheus.Counter
	RecognitionDuration  prometheus.Histogram
	RecognitionRetries   prometheus.Counter

	// Translation metrics
	TranslationRequests *prometheus.CounterVec
	TranslationFailures *prometheus.CounterVec
	TranslationDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP packet metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),

		// Ingest stream metrics
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "translator_active_streams",
			Help: "Current number of active UDP audio streams",
		}),
		StreamsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_streams_created_total",
			Help: "Total number of UDP audio streams accepted",
		}),
		StreamsDestroyed: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_streams_destroyed_total",
			Help: "Total number of UDP audio streams ended",
		}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_stream_duration_seconds",
			Help:    "Duration of UDP audio streams in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Pipeline metrics
		PipelineState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "translator_pipeline_state",
			Help: "Pipeline state (0 idle, 1 running, 2 stopping)",
		}),
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_runs_started_total",
			Help: "Total number of pipeline runs started",
		}),
		DeviceErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_device_errors_total",
			Help: "Total number of audio device errors that ended a run",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "translator_chunk_queue_size",
			Help: "Current number of chunks waiting for processing",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_chunks_dropped_total",
			Help: "Total number of chunks evicted from a full queue",
		}),
		ChunksDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_chunks_discarded_total",
			Help: "Total number of chunks discarded by stop or restart",
		}),
		ChunksCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_chunks_captured_total",
			Help: "Total number of audio chunks captured",
		}),
		ChunksSilent: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_chunks_silent_total",
			Help: "Total number of chunks recognized as empty text",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_chunk_duration_seconds",
			Help:    "Duration of captured audio chunks",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_chunk_size_bytes",
			Help:    "Size of captured audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		ResultsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_results_emitted_total",
			Help: "Total number of results delivered to the sink",
		}),
		ChunkLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_chunk_latency_seconds",
			Help:    "Time from chunk capture to result delivery",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),

		// Recognition metrics
		RecognitionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_recognition_requests_total",
			Help: "Total number of speech recognition requests sent",
		}),
		RecognitionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_recognition_successes_total",
			Help: "Total number of successful speech recognition requests",
		}),
		RecognitionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_recognition_failures_total",
			Help: "Total number of failed speech recognition requests",
		}),
		RecognitionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_recognition_duration_seconds",
			Help:    "Duration of speech recognition requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		RecognitionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_recognition_retries_total",
			Help: "Total number of speech recognition request retries",
		}),

		// Translation metrics
		TranslationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_translation_requests_total",
			Help: "Total number of translation requests by target language",
		}, []string{"language"}),
		TranslationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_translation_failures_total",
			Help: "Total number of translations replaced by the failure placeholder",
		}, []string{"language"}),
		TranslationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_translation_duration_seconds",
			Help:    "Duration of translation requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "translator_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	if m == nil {
		return
	}
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// RecordStreamCreated increments the streams created counter
func (m *Metrics) RecordStreamCreated() {
	if m == nil {
		return
	}
	m.StreamsCreated.Inc()
	m.ActiveStreams.Set(1)
}

// RecordStreamDestroyed increments the streams destroyed counter and records duration
func (m *Metrics) RecordStreamDestroyed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.StreamsDestroyed.Inc()
	m.StreamDuration.Observe(durationSeconds)
	m.ActiveStreams.Set(0)
}

// SetPipelineState sets the pipeline state gauge
func (m *Metrics) SetPipelineState(state int) {
	if m == nil {
		return
	}
	m.PipelineState.Set(float64(state))
}

// RecordRunStarted increments the runs started counter
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

// RecordDeviceError increments the device errors counter
func (m *Metrics) RecordDeviceError() {
	if m == nil {
		return
	}
	m.DeviceErrors.Inc()
}

// SetQueueSize sets the current chunk queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordChunkDropped increments the dropped chunks counter
func (m *Metrics) RecordChunkDropped() {
	if m == nil {
		return
	}
	m.ChunksDropped.Inc()
}

// RecordChunksDiscarded adds n to the discarded chunks counter
func (m *Metrics) RecordChunksDiscarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksDiscarded.Add(float64(n))
}

// RecordChunkCaptured records a captured audio chunk
func (m *Metrics) RecordChunkCaptured(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksCaptured.Inc()
	m.ChunkDuration.Observe(durationSeconds)
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkSilent increments the silent chunks counter
func (m *Metrics) RecordChunkSilent() {
	if m == nil {
		return
	}
	m.ChunksSilent.Inc()
}

// RecordResult records a result delivered to the sink
func (m *Metrics) RecordResult(latencySeconds float64) {
	if m == nil {
		return
	}
	m.ResultsEmitted.Inc()
	m.ChunkLatency.Observe(latencySeconds)
}

// RecordRecognitionRequest increments recognition requests counter
func (m *Metrics) RecordRecognitionRequest() {
	if m == nil {
		return
	}
	m.RecognitionRequests.Inc()
}

// RecordRecognitionSuccess records a successful recognition
func (m *Metrics) RecordRecognitionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RecognitionSuccesses.Inc()
	m.RecognitionDuration.Observe(durationSeconds)
}

// RecordRecognitionFailure records a failed recognition
func (m *Metrics) RecordRecognitionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RecognitionFailures.Inc()
	m.RecognitionDuration.Observe(durationSeconds)
}

// RecordRecognitionRetry increments the retry counter
func (m *Metrics) RecordRecognitionRetry() {
	if m == nil {
		return
	}
	m.RecognitionRetries.Inc()
}

// RecordTranslation records a translation attempt and whether it failed
func (m *Metrics) RecordTranslation(language string, failed bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranslationRequests.WithLabelValues(language).Inc()
	if failed {
		m.TranslationFailures.WithLabelValues(language).Inc()
	}
	m.TranslationDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
