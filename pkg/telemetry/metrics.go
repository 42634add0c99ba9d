package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for batches and sequence units.
// Every Record method is a no-op on a disabled instance.
type Metrics struct {
	config MetricsConfig

	batchesStarted   *prometheus.CounterVec
	batchesCompleted *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec

	sequencesExecuted *prometheus.CounterVec
	sequenceDuration  *prometheus.HistogramVec

	datasetsCommitted *prometheus.CounterVec

	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	activeBatches   prometheus.Gauge
	queuedSequences prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	ns := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		batchesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "batches_started_total", Help: "Total number of batches started",
		}, []string{"operation"}),
		batchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "batches_completed_total", Help: "Total number of batches finished, by status",
		}, []string{"operation", "status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "batch_duration_seconds", Help: "Batch duration in seconds", Buckets: buckets,
		}, []string{"operation", "status"}),
		sequencesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "sequence_units_executed_total", Help: "Total number of sequence units executed",
		}, []string{"operation", "status"}),
		sequenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "sequence_unit_duration_seconds", Help: "Sequence unit duration in seconds", Buckets: buckets,
		}, []string{"operation"}),
		datasetsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "datasets_committed_total", Help: "Total number of datasets published",
		}, []string{"kind"}),
		errorsByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "errors_by_class_total", Help: "Total number of errors by class",
		}, []string{"class"}),
		errorsByCode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "errors_by_code_total", Help: "Total number of errors by code",
		}, []string{"code"}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "active_batches", Help: "Number of batches currently running",
		}),
		queuedSequences: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "queued_sequence_units", Help: "Number of sequence units not yet finished",
		}),
	}

	m.registry.MustRegister(
		m.batchesStarted,
		m.batchesCompleted,
		m.batchDuration,
		m.sequencesExecuted,
		m.sequenceDuration,
		m.datasetsCommitted,
		m.errorsByClass,
		m.errorsByCode,
		m.activeBatches,
		m.queuedSequences,
	)
	return m, nil
}

// RecordBatchStarted counts a started batch.
func (m *Metrics) RecordBatchStarted(operation string) {
	if m.batchesStarted == nil {
		return
	}
	m.batchesStarted.WithLabelValues(operation).Inc()
	m.activeBatches.Inc()
}

// RecordBatchCompleted counts a finished batch and observes its duration.
func (m *Metrics) RecordBatchCompleted(operation, status string, duration time.Duration) {
	if m.batchesCompleted == nil {
		return
	}
	m.batchesCompleted.WithLabelValues(operation, status).Inc()
	m.batchDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	m.activeBatches.Dec()
}

// RecordSequence counts one sequence unit.
func (m *Metrics) RecordSequence(operation, status string, duration time.Duration) {
	if m.sequencesExecuted == nil {
		return
	}
	m.sequencesExecuted.WithLabelValues(operation, status).Inc()
	m.sequenceDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCommit counts a published dataset.
func (m *Metrics) RecordCommit(kind string) {
	if m.datasetsCommitted == nil {
		return
	}
	m.datasetsCommitted.WithLabelValues(kind).Inc()
}

// RecordError counts an error by class and, if set, by code.
func (m *Metrics) RecordError(class, code string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
	if code != "" {
		m.errorsByCode.WithLabelValues(code).Inc()
	}
}

// AddQueuedSequences adjusts the queued sequence gauge by delta.
func (m *Metrics) AddQueuedSequences(delta float64) {
	if m.queuedSequences == nil {
		return
	}
	m.queuedSequences.Add(delta)
}

// Registry returns the private registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// Duration returns the elapsed time.
func (t *Timer) Duration() time.Duration { return time.Since(t.start) }

// Handler returns the metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartMetricsServer serves the metrics endpoint in the background. Serve
// errors are reported on the returned channel.
func (m *Metrics) StartMetricsServer() <-chan error {
	errCh := make(chan error, 1)
	if !m.config.Enabled {
		close(errCh)
		return errCh
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())
	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		defer close(errCh)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
