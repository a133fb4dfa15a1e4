// Package metrics provides Prometheus instrumentation for the reward service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector exposed by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Reward pipeline
	rewardsComputed  prometheus.Counter
	schemaViolations prometheus.Counter
	emptyBatches     prometheus.Counter
	duplicateBatches prometheus.Counter
	warnings         *prometheus.CounterVec
	computeLatency   prometheus.Histogram

	// Sessions
	sessionsActive  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsClosed  prometheus.Counter
	ticksProcessed  prometheus.Counter

	// Diagnostics queue
	diagQueueSize        prometheus.Gauge
	diagQueueCapacity    prometheus.Gauge
	diagQueueUtilization prometheus.Gauge
	diagEnqueued         prometheus.Counter
	diagDropped          prometheus.Counter

	// Sinks
	sinkWrites       *prometheus.CounterVec
	sinkErrors       *prometheus.CounterVec
	sinkWriteLatency *prometheus.HistogramVec
	sinkWorkerCount  prometheus.Gauge

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// WebSocket stream
	streamConnections prometheus.Gauge
	streamMessages    *prometheus.CounterVec

	// Process health
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "critic",
		subsystem:        "reward",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics registers every collector on the configured registry.
func (m *Manager) initializeMetrics() { //nolint:funlen // one registration site for all collectors
	auto := promauto.With(m.registry)

	m.rewardsComputed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "computed_total",
		Help:      "Total number of reward computations that completed",
	})

	m.schemaViolations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "schema_violations_total",
		Help:      "Total number of event batches rejected by validation",
	})

	m.emptyBatches = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "empty_batches_total",
		Help:      "Total number of empty event batches handled via the neutral fallback",
	})

	m.duplicateBatches = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_batches_total",
		Help:      "Total number of redelivered batches absorbed by idempotency tracking",
	})

	m.warnings = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "warnings_total",
			Help:      "Total number of non-fatal pipeline warnings by kind",
		},
		[]string{"kind"},
	)

	m.computeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "compute_latency_milliseconds",
		Help:      "End-to-end reward computation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.sessionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_active",
		Help:      "Number of evaluation sessions currently open",
	})

	m.sessionsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_created_total",
		Help:      "Total number of evaluation sessions created",
	})

	m.sessionsClosed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_closed_total",
		Help:      "Total number of evaluation sessions torn down",
	})

	m.ticksProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ticks_total",
		Help:      "Total number of simulation ticks processed across sessions",
	})

	m.diagQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "diag_queue_size",
		Help:      "Current number of queued diagnostic records",
	})

	m.diagQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "diag_queue_capacity",
		Help:      "Maximum diagnostic queue capacity",
	})

	m.diagQueueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "diag_queue_utilization_ratio",
		Help:      "Diagnostic queue utilization (size / capacity)",
	})

	m.diagEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "diag_enqueued_total",
		Help:      "Total number of diagnostic records accepted by the queue",
	})

	m.diagDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "diag_dropped_total",
		Help:      "Total number of diagnostic records dropped under backpressure",
	})

	m.sinkWrites = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "sink_writes_total",
			Help:      "Total number of diagnostic records written per sink",
		},
		[]string{"sink"},
	)

	m.sinkErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "sink_errors_total",
			Help:      "Total number of failed sink writes per sink",
		},
		[]string{"sink"},
	)

	m.sinkWriteLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "sink_write_latency_milliseconds",
			Help:      "Sink write latency in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"sink"},
	)

	m.sinkWorkerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sink_worker_count",
		Help:      "Number of sink workers draining the diagnostic queue",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint, method and status",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP error responses by endpoint and error type",
		},
		[]string{"endpoint", "error_type"},
	)

	m.streamConnections = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_connections",
		Help:      "Number of open WebSocket stream connections",
	})

	m.streamMessages = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stream_messages_total",
			Help:      "Total number of WebSocket messages by direction",
		},
		[]string{"direction"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "Process heap allocation in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Reward pipeline functions.

// RecordRewardComputed increments the completed computation counter.
func RecordRewardComputed() {
	globalManager.rewardsComputed.Inc()
}

// RecordSchemaViolation increments the validation rejection counter.
func RecordSchemaViolation() {
	globalManager.schemaViolations.Inc()
}

// RecordEmptyBatch increments the empty batch counter.
func RecordEmptyBatch() {
	globalManager.emptyBatches.Inc()
}

// RecordDuplicateBatch increments the duplicate batch counter.
func RecordDuplicateBatch() {
	globalManager.duplicateBatches.Inc()
}

// RecordWarning increments the warning counter for a kind.
func RecordWarning(kind string) {
	globalManager.warnings.WithLabelValues(kind).Inc()
}

// RecordComputeLatency records end-to-end computation latency.
func RecordComputeLatency(latencyMs float64) {
	globalManager.computeLatency.Observe(latencyMs)
}

// Session functions.

// UpdateSessionsActive sets the number of open sessions.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionClosed increments the session teardown counter.
func RecordSessionClosed() {
	globalManager.sessionsClosed.Inc()
}

// RecordTick increments the processed tick counter.
func RecordTick() {
	globalManager.ticksProcessed.Inc()
}

// Diagnostics queue functions.

// UpdateDiagQueueSize sets the current diagnostic queue size.
func UpdateDiagQueueSize(size int) {
	globalManager.diagQueueSize.Set(float64(size))
}

// UpdateDiagQueueCapacity sets the diagnostic queue capacity.
func UpdateDiagQueueCapacity(capacity int) {
	globalManager.diagQueueCapacity.Set(float64(capacity))
}

// UpdateDiagQueueUtilization sets the diagnostic queue utilization ratio.
func UpdateDiagQueueUtilization(utilization float64) {
	globalManager.diagQueueUtilization.Set(utilization)
}

// RecordDiagEnqueued increments the accepted diagnostics counter.
func RecordDiagEnqueued() {
	globalManager.diagEnqueued.Inc()
}

// RecordDiagDropped increments the dropped diagnostics counter.
func RecordDiagDropped() {
	globalManager.diagDropped.Inc()
}

// Sink functions.

// RecordSinkWrite increments the write counter for a sink.
func RecordSinkWrite(sink string) {
	globalManager.sinkWrites.WithLabelValues(sink).Inc()
}

// RecordSinkError increments the error counter for a sink.
func RecordSinkError(sink string) {
	globalManager.sinkErrors.WithLabelValues(sink).Inc()
}

// RecordSinkWriteLatency records a sink write latency.
func RecordSinkWriteLatency(sink string, latencyMs float64) {
	globalManager.sinkWriteLatency.WithLabelValues(sink).Observe(latencyMs)
}

// UpdateSinkWorkerCount sets the number of sink workers.
func UpdateSinkWorkerCount(count int) {
	globalManager.sinkWorkerCount.Set(float64(count))
}

// HTTP functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPError counts an HTTP error response by classified type.
func RecordHTTPError(endpoint, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, errorType).Inc()
}

// Stream functions.

// IncStreamConnections counts a stream connection opening.
func IncStreamConnections() {
	globalManager.streamConnections.Inc()
}

// DecStreamConnections counts a stream connection closing.
func DecStreamConnections() {
	globalManager.streamConnections.Dec()
}

// RecordStreamMessage increments the stream message counter for a direction.
func RecordStreamMessage(direction string) {
	globalManager.streamMessages.WithLabelValues(direction).Inc()
}

// Process health functions.

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by the service.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
