// Package metrics exposes Prometheus instrumentation for portal calls,
// retrievals and sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opd_explorer"

// Retrieval outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LoaderCalls    *prometheus.CounterVec
	LoaderDuration *prometheus.HistogramVec
	Retrievals     *prometheus.CounterVec
	RetrievedRows  prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		LoaderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_calls_total",
			Help:      "Calls to data portals by data type, operation and outcome.",
		}, []string{"data_type", "op", "outcome"}),
		LoaderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loader_call_duration_seconds",
			Help:      "Duration of calls to data portals.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"data_type", "op"}),
		Retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Dataset retrievals by outcome.",
		}, []string{"outcome"}),
		RetrievedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieved_rows_total",
			Help:      "Rows returned by successful retrievals.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Selection sessions currently held in memory.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LoaderCalls, m.LoaderDuration, m.Retrievals, m.RetrievedRows, m.ActiveSessions,
	)
	return m
}

// ObserveLoader records one portal call that started at start.
func (m *Metrics) ObserveLoader(dataType, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	m.LoaderCalls.WithLabelValues(dataType, op, outcome).Inc()
	m.LoaderDuration.WithLabelValues(dataType, op).Observe(time.Since(start).Seconds())
}

// ObserveRetrieval records the outcome of one retrieval.
func (m *Metrics) ObserveRetrieval(outcome string, rows int) {
	if m == nil {
		return
	}
	m.Retrievals.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.RetrievedRows.Add(float64(rows))
	}
}

// SetActiveSessions reports the session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
