// Package telemetry exposes optional Prometheus metrics and OpenTelemetry
// spans for simulation runs. Nothing in the kernel depends on their values.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the simulation counters on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	simulations     *prometheus.CounterVec
	simulateSeconds *prometheus.HistogramVec
	batches         prometheus.Counter
	failures        *prometheus.CounterVec
	resets          *prometheus.CounterVec
	extensions      prometheus.Counter
}

// NewMetrics creates the collectors under namespace and registers them.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		simulations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulations_total",
				Help:      "Simulation requests served, by mode",
			},
			[]string{"mode"},
		),
		simulateSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "simulate_duration_seconds",
				Help:      "Wall time spent serving a simulation request",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		batches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Engine batches executed",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Simulations aborted, by error code",
			},
			[]string{"code"},
		),
		resets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incremental_resets_total",
				Help:      "Incremental driver full restarts, by reason",
			},
			[]string{"reason"},
		),
		extensions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incremental_extensions_total",
				Help:      "Incremental driver requests served by extending the current session",
			},
		),
	}
	registry.MustRegister(
		m.simulations,
		m.simulateSeconds,
		m.batches,
		m.failures,
		m.resets,
		m.extensions,
	)
	return m
}

// Registry returns the registry holding the collectors, or nil.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordSimulation counts one served request and its wall time.
func (m *Metrics) RecordSimulation(mode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(mode).Inc()
	m.simulateSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordBatch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

func (m *Metrics) RecordFailure(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.failures.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordReset(reason string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordExtension() {
	if m == nil {
		return
	}
	m.extensions.Inc()
}

// WriteTextfile writes the current values in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
