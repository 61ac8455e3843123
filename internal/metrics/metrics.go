// Package metrics exposes prometheus instrumentation for git commands and
// synchronization operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60, 120, 300, 600}

// Metrics holds the collectors of one registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commandCount      *prometheus.CounterVec
	commandFailed     *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	operationCount    *prometheus.CounterVec
	operationFailed   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	lastOperationEnd  *prometheus.GaugeVec
	proxySessions     prometheus.Gauge
	proxyFailed       prometheus.Counter
	commitsExtracted  prometheus.Counter
	commitsSkipped    prometheus.Counter
}

// New creates a Metrics with its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		commandCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_git_command_total",
				Help: "Total number of git commands executed",
			},
			[]string{"verb"},
		),
		commandFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_git_command_failed_total",
				Help: "Total number of failed git commands",
			},
			[]string{"verb"},
		),
		commandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reposync_git_command_duration_seconds",
				Help:    "Git command duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"verb"},
		),
		operationCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_operation_total",
				Help: "Total number of synchronization operations",
			},
			[]string{"operation", "backend"},
		),
		operationFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_operation_failed_total",
				Help: "Total number of failed synchronization operations",
			},
			[]string{"operation", "backend"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reposync_operation_duration_seconds",
				Help:    "Synchronization operation duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"operation", "backend"},
		),
		lastOperationEnd: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reposync_last_operation_end_timestamp",
				Help: "Unix timestamp of when the last synchronization operation ended",
			},
			[]string{"operation"},
		),
		proxySessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reposync_proxy_sessions",
				Help: "Number of currently registered ssh proxy sessions",
			},
		),
		proxyFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reposync_proxy_failed_total",
				Help: "Total number of ssh proxy sessions that ended with an error",
			},
		),
		commitsExtracted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reposync_commits_extracted_total",
				Help: "Total number of commit records extracted from history",
			},
		),
		commitsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reposync_commits_skipped_total",
				Help: "Total number of commits skipped because of the changeset limit",
			},
		),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// CommandFinished records one git command
func (m *Metrics) CommandFinished(verb string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.commandCount.WithLabelValues(verb).Inc()
	m.commandDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
	if err != nil {
		m.commandFailed.WithLabelValues(verb).Inc()
	}
}

// OperationFinished records one synchronization operation
func (m *Metrics) OperationFinished(operation, backend string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operationCount.WithLabelValues(operation, backend).Inc()
	m.operationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
	m.lastOperationEnd.WithLabelValues(operation).Set(float64(time.Now().Unix()))
	if err != nil {
		m.operationFailed.WithLabelValues(operation, backend).Inc()
	}
}

// ProxyOpened records a new proxy session
func (m *Metrics) ProxyOpened() {
	if m == nil {
		return
	}
	m.proxySessions.Inc()
}

// ProxyClosed records the end of a proxy session
func (m *Metrics) ProxyClosed(err error) {
	if m == nil {
		return
	}
	m.proxySessions.Dec()
	if err != nil {
		m.proxyFailed.Inc()
	}
}

// CommitsExtracted records the outcome of a commit-range extraction
func (m *Metrics) CommitsExtracted(accepted, skipped int) {
	if m == nil {
		return
	}
	m.commitsExtracted.Add(float64(accepted))
	m.commitsSkipped.Add(float64(skipped))
}

// WriteFile writes the registry in the prometheus text format
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
