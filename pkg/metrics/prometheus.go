// Package metrics provides Prometheus metrics for the tempograph engine.
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

// Manager manages all Prometheus metrics for the tempograph service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion Metrics - Episode pipeline health
	episodesIngested  prometheus.Counter
	episodesDuplicate prometheus.Counter
	episodesMalformed prometheus.Counter
	episodesDeferred  prometheus.Counter
	normalizeLatency  prometheus.Histogram
	resolveLatency    prometheus.Histogram

	// Graph Store Metrics - Mutation and read performance
	graphEntitiesTotal prometheus.Gauge
	graphFactsTotal    prometheus.Gauge
	graphFactsClosed   prometheus.Counter
	graphWriteConflict prometheus.Counter
	graphApplyLatency  prometheus.Histogram
	graphQueryLatency  prometheus.Histogram

	// Queue Metrics - Transport consumption
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	offsetCommits      *prometheus.CounterVec

	// Worker Metrics - Per-partition ingestion workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	workerRetryCount        prometheus.Counter

	// Community Metrics - Detection job
	communityRuns        prometheus.Counter
	communityTimeouts    prometheus.Counter
	communityDuration    prometheus.Histogram
	communitiesDetected  prometheus.Gauge
	communityMemberships prometheus.Counter

	// Rule Engine Metrics - Evaluation outcomes
	ruleEvaluations   *prometheus.CounterVec
	ruleTickDuration  prometheus.Histogram
	decisionsEmitted  prometheus.Counter
	ruleActiveCount   prometheus.Gauge
	metricComputeTime prometheus.Histogram

	// Dispatch Metrics - Action delivery
	dispatchAttempts prometheus.Counter
	dispatchRetries  prometheus.Counter
	dispatchFailures prometheus.Counter
	dispatchLatency  prometheus.Histogram
	alertsPublished  prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tempograph",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Ingestion Metrics
	m.episodesIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "episodes_ingested_total",
		Help:      "Total number of episodes normalized and applied to the graph",
	})

	m.episodesDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "episodes_duplicate_total",
		Help:      "Total number of duplicate episodes dropped by the idempotency index",
	})

	m.episodesMalformed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "episodes_malformed_total",
		Help:      "Total number of malformed events rejected by the normalizer",
	})

	m.episodesDeferred = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "episodes_deferred_total",
		Help:      "Total number of episodes deferred due to ambiguous entity resolution",
	})

	m.normalizeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "normalize_latency_milliseconds",
		Help:      "Histogram of event normalization latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.resolveLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolve_latency_milliseconds",
		Help:      "Histogram of entity resolution latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Graph Store Metrics
	m.graphEntitiesTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "graph_entities_total",
		Help:      "Current number of entities in the graph store",
	})

	m.graphFactsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "graph_facts_total",
		Help:      "Current number of temporal facts in the graph store",
	})

	m.graphFactsClosed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "graph_facts_closed_total",
		Help:      "Total number of fact intervals closed by superseding facts",
	})

	m.graphWriteConflict = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "graph_write_conflicts_total",
		Help:      "Total number of optimistic write conflicts on entity mutation",
	})

	m.graphApplyLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "graph_apply_latency_milliseconds",
		Help:      "Mutation batch apply latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.graphQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "graph_query_latency_milliseconds",
		Help:      "Temporal query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Queue Metrics
	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of pending transport messages (backlog indicator)",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization_ratio",
		Help:      "Queue utilization ratio (current size / capacity)",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Total number of messages enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Total number of messages dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Total number of enqueue failures (closed or full queue)",
	})

	m.offsetCommits = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "offset_commits_total",
			Help:      "Total number of offsets committed after durable graph mutation",
		},
		[]string{"partition"},
	)

	// Worker Metrics
	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Current number of active partition workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "End-to-end per-message processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of worker processing errors",
	})

	m.workerRetryCount = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_retries_total",
		Help:      "Total number of worker retries after write conflicts",
	})

	// Community Metrics
	m.communityRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "community_runs_total",
		Help:      "Total number of community detection passes",
	})

	m.communityTimeouts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "community_timeouts_total",
		Help:      "Total number of community detection passes that failed to converge",
	})

	m.communityDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "community_duration_milliseconds",
		Help:      "Community detection pass duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.communitiesDetected = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "communities_detected",
		Help:      "Number of communities found by the most recent detection pass",
	})

	m.communityMemberships = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "community_memberships_total",
		Help:      "Total number of BELONGS_TO membership facts written",
	})

	// Rule Engine Metrics
	m.ruleEvaluations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "rule_evaluations_total",
			Help:      "Total number of rule evaluations by outcome",
		},
		[]string{"outcome"},
	)

	m.ruleTickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rule_tick_duration_milliseconds",
		Help:      "Rule engine tick duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.decisionsEmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "decisions_emitted_total",
		Help:      "Total number of optimization decisions emitted",
	})

	m.ruleActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rules_active",
		Help:      "Current number of enabled optimization rules",
	})

	m.metricComputeTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "metric_compute_milliseconds",
		Help:      "Windowed metric computation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Dispatch Metrics
	m.dispatchAttempts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_attempts_total",
		Help:      "Total number of action dispatch attempts",
	})

	m.dispatchRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_retries_total",
		Help:      "Total number of dispatch retries after transient failures",
	})

	m.dispatchFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_failures_total",
		Help:      "Total number of dispatches that exhausted all retries",
	})

	m.dispatchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_latency_milliseconds",
		Help:      "Action dispatch latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.alertsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alerts_published_total",
		Help:      "Total number of alerts published to the alert topic",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
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

	// Enhanced Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total errors by component and error type",
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Total errors by error type and severity",
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total errors by endpoint, method and error type",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of operations that resulted in an error",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "System memory usage in bytes",
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

// Ingestion Metrics Functions.

// RecordEpisodeIngested increments the ingested episodes counter.
func RecordEpisodeIngested() {
	globalManager.episodesIngested.Inc()
}

// RecordEpisodeDuplicate increments the duplicate episodes counter.
func RecordEpisodeDuplicate() {
	globalManager.episodesDuplicate.Inc()
}

// RecordEpisodeMalformed increments the malformed events counter.
func RecordEpisodeMalformed() {
	globalManager.episodesMalformed.Inc()
}

// RecordEpisodeDeferred increments the deferred episodes counter.
func RecordEpisodeDeferred() {
	globalManager.episodesDeferred.Inc()
}

// RecordNormalizeLatency records normalization latency in milliseconds.
func RecordNormalizeLatency(latencyMs float64) {
	globalManager.normalizeLatency.Observe(latencyMs)
}

// RecordResolveLatency records entity resolution latency in milliseconds.
func RecordResolveLatency(latencyMs float64) {
	globalManager.resolveLatency.Observe(latencyMs)
}

// Graph Store Metrics Functions.

// UpdateGraphEntitiesTotal sets the current entity count.
func UpdateGraphEntitiesTotal(count int) {
	globalManager.graphEntitiesTotal.Set(float64(count))
}

// UpdateGraphFactsTotal sets the current fact count.
func UpdateGraphFactsTotal(count int) {
	globalManager.graphFactsTotal.Set(float64(count))
}

// RecordGraphFactClosed increments the closed fact intervals counter.
func RecordGraphFactClosed() {
	globalManager.graphFactsClosed.Inc()
}

// RecordGraphWriteConflict increments the write conflict counter.
func RecordGraphWriteConflict() {
	globalManager.graphWriteConflict.Inc()
}

// RecordGraphApplyLatency records batch apply latency in milliseconds.
func RecordGraphApplyLatency(latencyMs float64) {
	globalManager.graphApplyLatency.Observe(latencyMs)
}

// RecordGraphQueryLatency records temporal query latency in milliseconds.
func RecordGraphQueryLatency(latencyMs float64) {
	globalManager.graphQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordOffsetCommit increments the committed offset counter for a partition.
func RecordOffsetCommit(partition string) {
	globalManager.offsetCommits.WithLabelValues(partition).Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active partition workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordWorkerRetry increments the worker retry counter.
func RecordWorkerRetry() {
	globalManager.workerRetryCount.Inc()
}

// Community Metrics Functions.

// RecordCommunityRun increments the detection pass counter.
func RecordCommunityRun() {
	globalManager.communityRuns.Inc()
}

// RecordCommunityTimeout increments the non-convergence counter.
func RecordCommunityTimeout() {
	globalManager.communityTimeouts.Inc()
}

// RecordCommunityDuration records detection pass duration in milliseconds.
func RecordCommunityDuration(durationMs float64) {
	globalManager.communityDuration.Observe(durationMs)
}

// UpdateCommunitiesDetected sets the community count from the latest pass.
func UpdateCommunitiesDetected(count int) {
	globalManager.communitiesDetected.Set(float64(count))
}

// RecordCommunityMembership increments the membership facts counter.
func RecordCommunityMembership() {
	globalManager.communityMemberships.Inc()
}

// Rule Engine Metrics Functions.

// RecordRuleEvaluation records a rule evaluation with its outcome
// (decided, skipped, failed).
func RecordRuleEvaluation(outcome string) {
	globalManager.ruleEvaluations.WithLabelValues(outcome).Inc()
}

// RecordRuleTickDuration records rule engine tick duration in milliseconds.
func RecordRuleTickDuration(durationMs float64) {
	globalManager.ruleTickDuration.Observe(durationMs)
}

// RecordDecisionEmitted increments the emitted decisions counter.
func RecordDecisionEmitted() {
	globalManager.decisionsEmitted.Inc()
}

// UpdateActiveRuleCount sets the number of enabled rules.
func UpdateActiveRuleCount(count int) {
	globalManager.ruleActiveCount.Set(float64(count))
}

// RecordMetricComputeTime records windowed metric computation latency.
func RecordMetricComputeTime(latencyMs float64) {
	globalManager.metricComputeTime.Observe(latencyMs)
}

// Dispatch Metrics Functions.

// RecordDispatchAttempt increments the dispatch attempts counter.
func RecordDispatchAttempt() {
	globalManager.dispatchAttempts.Inc()
}

// RecordDispatchRetry increments the dispatch retries counter.
func RecordDispatchRetry() {
	globalManager.dispatchRetries.Inc()
}

// RecordDispatchFailure increments the exhausted-retries counter.
func RecordDispatchFailure() {
	globalManager.dispatchFailures.Inc()
}

// RecordDispatchLatency records dispatch latency in milliseconds.
func RecordDispatchLatency(latencyMs float64) {
	globalManager.dispatchLatency.Observe(latencyMs)
}

// RecordAlertPublished increments the published alerts counter.
func RecordAlertPublished() {
	globalManager.alertsPublished.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Enhanced Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
