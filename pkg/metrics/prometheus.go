// Package metrics provides Prometheus metrics for the brewtaste profile engine.
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

// Manager manages all Prometheus metrics for the profile engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Aggregation metrics
	profilesGenerated  prometheus.Counter
	profilesRefined    prometheus.Counter
	aggregationLatency prometheus.Histogram

	// Scheduler metrics
	updateTriggers    *prometheus.CounterVec
	profileUpdates    *prometheus.CounterVec
	triggersCollapsed prometheus.Counter
	triggersDropped   prometheus.Counter
	queueSize         prometheus.Gauge
	processingCount   prometheus.Gauge

	// Similarity metrics
	affinityQueries    *prometheus.CounterVec
	clusteringRuns     prometheus.Counter
	clusteringLatency  prometheus.Histogram
	clusteringIterSize prometheus.Histogram

	// Store metrics
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec
	totalProfiles prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "brewtaste",
		subsystem:        "profile",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
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
func (m *Manager) initializeMetrics() {
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Aggregation metrics
	m.profilesGenerated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "profiles_generated_total",
		Help:      "Total number of full profile aggregations",
	})

	m.profilesRefined = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "profiles_refined_total",
		Help:      "Total number of collaborative-filtering refinements persisted",
	})

	m.aggregationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregation_latency_milliseconds",
		Help:      "Histogram of full aggregation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Scheduler metrics
	m.updateTriggers = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "update_triggers_total",
			Help:      "Total number of update triggers received, by trigger type",
		},
		[]string{"trigger_type"},
	)

	m.profileUpdates = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "profile_updates_total",
			Help:      "Total number of resolved profile updates, by update type",
		},
		[]string{"update_type"},
	)

	m.triggersCollapsed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "triggers_collapsed_total",
		Help:      "Total number of triggers replaced inside the debounce window",
	})

	m.triggersDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "triggers_dropped_total",
		Help:      "Total number of triggers dropped because the user was already processing",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "update_queue_size",
		Help:      "Current number of users with a pending debounced trigger",
	})

	m.processingCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "processing_count",
		Help:      "Current number of users with an in-flight recomputation",
	})

	// Similarity metrics
	m.affinityQueries = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "affinity_queries_total",
			Help:      "Total number of affinity queries, by kind (user or coffee)",
		},
		[]string{"kind"},
	)

	m.clusteringRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clustering_runs_total",
		Help:      "Total number of completed clustering runs",
	})

	m.clusteringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clustering_latency_milliseconds",
		Help:      "Clustering run latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.clusteringIterSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clustering_iterations",
		Help:      "Iterations needed for a clustering run to converge",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 40, 50},
	})

	// Store metrics
	m.storeLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_latency_milliseconds",
			Help:      "Store operation latency in milliseconds, by operation",
			Buckets:   m.histogramBuckets,
		},
		[]string{"operation"},
	)

	m.storeErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_errors_total",
			Help:      "Total number of store errors, by operation",
		},
		[]string{"operation"},
	)

	m.totalProfiles = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "total_profiles",
		Help:      "Total number of stored taste profiles",
	})

	// HTTP metrics
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

	// System metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordProfileGenerated increments the full-aggregation counter.
func RecordProfileGenerated() {
	globalManager.profilesGenerated.Inc()
}

// RecordProfileRefined increments the refinement counter.
func RecordProfileRefined() {
	globalManager.profilesRefined.Inc()
}

// RecordAggregationLatency records full-aggregation latency in milliseconds.
func RecordAggregationLatency(latencyMs float64) {
	globalManager.aggregationLatency.Observe(latencyMs)
}

// RecordUpdateTrigger counts a received trigger by type.
func RecordUpdateTrigger(triggerType string) {
	globalManager.updateTriggers.WithLabelValues(triggerType).Inc()
}

// RecordProfileUpdate counts a resolved update by type.
func RecordProfileUpdate(updateType string) {
	globalManager.profileUpdates.WithLabelValues(updateType).Inc()
}

// RecordTriggerCollapsed counts a trigger replaced inside the debounce window.
func RecordTriggerCollapsed() {
	globalManager.triggersCollapsed.Inc()
}

// RecordTriggerDropped counts a trigger dropped against an in-flight run.
func RecordTriggerDropped() {
	globalManager.triggersDropped.Inc()
}

// UpdateQueueSize sets the current debounce queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateProcessingCount sets the current in-flight user count.
func UpdateProcessingCount(count int) {
	globalManager.processingCount.Set(float64(count))
}

// RecordAffinityQuery counts an affinity query by kind.
func RecordAffinityQuery(kind string) {
	globalManager.affinityQueries.WithLabelValues(kind).Inc()
}

// RecordClusteringRun records one completed clustering run.
func RecordClusteringRun(iterations int, latencyMs float64) {
	globalManager.clusteringRuns.Inc()
	globalManager.clusteringIterSize.Observe(float64(iterations))
	globalManager.clusteringLatency.Observe(latencyMs)
}

// RecordStoreLatency records a store operation latency.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError counts a store error by operation.
func RecordStoreError(operation string) {
	globalManager.storeErrors.WithLabelValues(operation).Inc()
}

// UpdateTotalProfiles sets the stored profile count.
func UpdateTotalProfiles(count int) {
	globalManager.totalProfiles.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
