// Package metrics provides Prometheus-based metrics collection for gvmscan.
// It tracks orchestration outcomes, engine round trips and the HTTP shell.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all gvmscan metrics
	namespace = "gvmscan"

	// Subsystems
	subsystemOrchestrator = "orchestrator"
	subsystemEngine       = "engine"
	subsystemSystem       = "system"
	subsystemAPI          = "api"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeCreated = "created"
	OutcomeReused  = "reused"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Orchestration metrics
	operationsTotal    *prometheus.CounterVec
	stepFaults         *prometheus.CounterVec
	targetResolutions  *prometheus.CounterVec
	findingsReported   prometheus.Counter
	operationsInFlight prometheus.Gauge

	// Engine metrics
	engineCalls        *prometheus.CounterVec
	engineCallDuration *prometheus.HistogramVec

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initOrchestratorMetrics()
	pm.initEngineMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initOrchestratorMetrics() {
	pm.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "operations_total",
			Help:      "Total number of orchestration operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	pm.stepFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "step_faults_total",
			Help:      "Total number of faults by lifecycle step and fault code",
		},
		[]string{"step", "code"},
	)

	pm.targetResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "target_resolutions_total",
			Help:      "Targets reused from the engine versus newly created",
		},
		[]string{"outcome"},
	)

	pm.findingsReported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "findings_reported_total",
			Help:      "Total number of findings returned to callers",
		},
	)

	pm.operationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "operations_in_flight",
			Help:      "Number of operations currently holding an engine session",
		},
	)
}

func (pm *PrometheusMetrics) initEngineMetrics() {
	pm.engineCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Name:      "calls_total",
			Help:      "Total number of engine round trips by step and outcome",
		},
		[]string{"step", "outcome"},
	)

	pm.engineCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Name:      "call_duration_seconds",
			Help:      "Duration of engine round trips in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"step"},
	)
}

// initAPIMetrics initializes API-related metrics
func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0},
		},
		[]string{"method", "path"},
	)

	pm.httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "errors_total",
			Help:      "Total number of HTTP errors by method, path and error type",
		},
		[]string{"method", "path", "error_type"},
	)
}

// initSystemMetrics initializes system-related metrics
func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.operationsTotal,
		pm.stepFaults,
		pm.targetResolutions,
		pm.findingsReported,
		pm.operationsInFlight,
		pm.engineCalls,
		pm.engineCallDuration,
		pm.httpRequests,
		pm.httpDuration,
		pm.httpErrors,
		pm.memoryUsage,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Orchestration Metrics Methods

// IncrementOperations counts a finished orchestration operation.
func (pm *PrometheusMetrics) IncrementOperations(operation, outcome string) {
	pm.operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// IncrementStepFaults counts a fault raised by a lifecycle step.
func (pm *PrometheusMetrics) IncrementStepFaults(step, code string) {
	pm.stepFaults.WithLabelValues(step, code).Inc()
}

// IncrementTargetResolutions counts a target that was reused or created.
func (pm *PrometheusMetrics) IncrementTargetResolutions(outcome string) {
	pm.targetResolutions.WithLabelValues(outcome).Inc()
}

// AddFindings counts findings returned to a caller.
func (pm *PrometheusMetrics) AddFindings(count int) {
	pm.findingsReported.Add(float64(count))
}

// SessionOpened and SessionClosed track operations holding a session.
func (pm *PrometheusMetrics) SessionOpened() {
	pm.operationsInFlight.Inc()
}

func (pm *PrometheusMetrics) SessionClosed() {
	pm.operationsInFlight.Dec()
}

// RecordEngineCall records one engine round trip.
func (pm *PrometheusMetrics) RecordEngineCall(step string, duration time.Duration, success bool) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	pm.engineCalls.WithLabelValues(step, outcome).Inc()
	pm.engineCallDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// API Metrics Methods

// IncrementHTTPRequests increments HTTP request counter
func (pm *PrometheusMetrics) IncrementHTTPRequests(method, path, status string) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func (pm *PrometheusMetrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPErrors increments HTTP error counter
func (pm *PrometheusMetrics) IncrementHTTPErrors(method, path, errorType string) {
	pm.httpErrors.WithLabelValues(method, path, errorType).Inc()
}

// System Metrics Methods

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())

	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates updates system metrics every interval until ctx is done.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}
