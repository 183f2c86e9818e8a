package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice translation service
type Metrics struct {
	// Ingest packet metrics
	PacketsReceived prometheus.Counter
	ParseErrors     prometheus.Counter

	// Capture metrics
	FramesCaptured  prometheus.Counter
	FramesRejected  *prometheus.CounterVec
	CaptureDuration prometheus.Histogram
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved prometheus.Counter

	// Pipeline run metrics
	RunsStarted   prometheus.Counter
	RunsCompleted prometheus.Counter
	RunsFailed    *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	EncodedBytes  prometheus.Histogram

	// Stage metrics
	StageRequests *prometheus.CounterVec
	StageFailures *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "vts_packets_received_total",
			Help: "Total number of ingest packets received over UDP and WebSocket",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "vts_parse_errors_total",
			Help: "Total number of ingest packet parsing errors",
		}),

		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "vts_frames_captured_total",
			Help: "Total number of audio frames appended to capture sessions",
		}),
		FramesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vts_frames_rejected_total",
			Help: "Total number of audio frames rejected by capture sessions",
		}, []string{"reason"}),
		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vts_capture_duration_seconds",
			Help:    "Length of finalized capture buffers",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1 minute
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vts_active_sessions",
			Help: "Current number of user sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "vts_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "vts_sessions_removed_total",
			Help: "Total number of sessions removed",
		}),

		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vts_runs_started_total",
			Help: "Total number of pipeline runs started",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vts_runs_completed_total",
			Help: "Total number of pipeline runs that completed",
		}),
		RunsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vts_runs_failed_total",
			Help: "Total number of pipeline runs that failed, by the state they failed in",
		}, []string{"state"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vts_run_duration_seconds",
			Help:    "Wall time from capture start to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		EncodedBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vts_encoded_audio_bytes",
			Help:    "Size of encoded WAV payloads sent to speech-to-text",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		StageRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vts_stage_requests_total",
			Help: "Total number of remote stage calls",
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vts_stage_failures_total",
			Help: "Total number of failed remote stage calls",
		}, []string{"stage", "kind"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vts_stage_duration_seconds",
			Help:    "Duration of remote stage calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vts_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vts_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vts_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// RecordFrameCaptured increments the captured frames counter
func (m *Metrics) RecordFrameCaptured() {
	m.FramesCaptured.Inc()
}

// RecordFrameRejected increments the rejected frames counter
func (m *Metrics) RecordFrameRejected(reason string) {
	m.FramesRejected.WithLabelValues(reason).Inc()
}

// RecordCapture records a finalized capture buffer
func (m *Metrics) RecordCapture(durationSeconds float64, encodedBytes int) {
	m.CaptureDuration.Observe(durationSeconds)
	m.EncodedBytes.Observe(float64(encodedBytes))
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionRemoved increments the sessions removed counter
func (m *Metrics) RecordSessionRemoved() {
	m.SessionsRemoved.Inc()
}

// RecordRunStarted increments the runs started counter
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records a completed run
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records a failed run and the state it failed in
func (m *Metrics) RecordRunFailed(state string, durationSeconds float64) {
	m.RunsFailed.WithLabelValues(state).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordStageSuccess records a successful stage call
func (m *Metrics) RecordStageSuccess(stage string, durationSeconds float64) {
	m.StageRequests.WithLabelValues(stage).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageFailure records a failed stage call
func (m *Metrics) RecordStageFailure(stage, kind string, durationSeconds float64) {
	m.StageRequests.WithLabelValues(stage).Inc()
	m.StageFailures.WithLabelValues(stage, kind).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
