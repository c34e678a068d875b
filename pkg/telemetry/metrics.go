package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the lifecycle layer.
//
// Every recording method is safe to call on a nil *Metrics or on a disabled
// instance, so components can take an optional metrics collector.
type Metrics struct {
	config MetricsConfig

	// Lifecycle metrics
	nodeInitializations *prometheus.CounterVec
	nodeSetups          *prometheus.CounterVec
	initDuration        *prometheus.HistogramVec

	// Hook metrics
	hooksRegistered *prometheus.GaugeVec
	hookFlushes     *prometheus.CounterVec

	// Dependency metrics
	dependencyChecks *prometheus.CounterVec

	// Permission metrics
	permissionCache   *prometheus.CounterVec
	permissionCompile *prometheus.HistogramVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		nodeInitializations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_initializations_total",
				Help:      "Total number of node initializations by result",
			},
			[]string{"result"},
		),
		nodeSetups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_setups_total",
				Help:      "Total number of node setups by mode and result",
			},
			[]string{"mode", "result"},
		),
		initDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tree_initialize_duration_seconds",
				Help:      "Duration of a full tree initialization in seconds",
				Buckets:   buckets,
			},
			[]string{"result"},
		),

		hooksRegistered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "hooks_registered",
				Help:      "Current number of hooks registered on the host bus per handler",
			},
			[]string{"handler"},
		),
		hookFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_flushes_total",
				Help:      "Total number of deferred hook flushes (run) and reversals (reset)",
			},
			[]string{"variant", "direction"},
		),

		dependencyChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dependency_checks_total",
				Help:      "Total number of dependency handler evaluations by result",
			},
			[]string{"handler", "result"},
		),

		permissionCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_cache_lookups_total",
				Help:      "Permission aggregation cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		permissionCompile: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "permission_compile_duration_seconds",
				Help:      "Duration of an uncached permission reduction in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.nodeInitializations,
		m.nodeSetups,
		m.initDuration,
		m.hooksRegistered,
		m.hookFlushes,
		m.dependencyChecks,
		m.permissionCache,
		m.permissionCompile,
		m.errorsByCode,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Lifecycle Metrics

// RecordNodeInitialization records the outcome of a single node
// initialization (success, failure, skipped).
func (m *Metrics) RecordNodeInitialization(result string) {
	if !m.enabled() {
		return
	}
	m.nodeInitializations.WithLabelValues(result).Inc()
}

// RecordNodeSetup records a node setup. Mode is "immediate" or "deferred".
func (m *Metrics) RecordNodeSetup(mode, result string) {
	if !m.enabled() {
		return
	}
	m.nodeSetups.WithLabelValues(mode, result).Inc()
}

// RecordTreeInitialize records the duration of a top-level initialization.
func (m *Metrics) RecordTreeInitialize(result string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.initDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// Hook Metrics

// AddHooksRegistered adjusts the registered hook gauge for a handler.
func (m *Metrics) AddHooksRegistered(handler string, delta int) {
	if !m.enabled() {
		return
	}
	m.hooksRegistered.WithLabelValues(handler).Add(float64(delta))
}

// RecordHookFlush records a run or reset of a deferred hook handler.
func (m *Metrics) RecordHookFlush(variant, direction string) {
	if !m.enabled() {
		return
	}
	m.hookFlushes.WithLabelValues(variant, direction).Inc()
}

// Dependency Metrics

// RecordDependencyCheck records a dependency handler evaluation.
func (m *Metrics) RecordDependencyCheck(handler string, fulfilled bool) {
	if !m.enabled() {
		return
	}
	result := "unfulfilled"
	if fulfilled {
		result = "fulfilled"
	}
	m.dependencyChecks.WithLabelValues(handler, result).Inc()
}

// Permission Metrics

// RecordPermissionCache records a cache lookup for kind (permissions, rules).
func (m *Metrics) RecordPermissionCache(kind string, hit bool) {
	if !m.enabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.permissionCache.WithLabelValues(kind, result).Inc()
}

// RecordPermissionCompile records the duration of an uncached reduction.
func (m *Metrics) RecordPermissionCompile(kind string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.permissionCompile.WithLabelValues(kind).Observe(duration.Seconds())
}

// Error Metrics

// RecordError records an error by code.
func (m *Metrics) RecordError(code string) {
	if !m.enabled() || code == "" {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// Registry returns the underlying Prometheus registry, or nil when metrics
// are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
