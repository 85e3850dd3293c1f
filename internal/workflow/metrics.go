package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for workflow execution.
// All metrics use the busara_workflow_ namespace.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	NodesTotal      *prometheus.CounterVec
	NodeDuration    *prometheus.HistogramVec
	EdgesTotal      *prometheus.CounterVec
	ActiveRuns      prometheus.Gauge
	LoopAbortsTotal prometheus.Counter
}

// NewMetrics creates and registers workflow metrics on the given registry.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Total workflow runs by final status.",
		}, []string{"status"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "workflow",
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),

		NodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "workflow",
			Name:      "nodes_total",
			Help:      "Total executed nodes by type and status.",
		}, []string{"type", "status"}),

		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "workflow",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds by type.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"type"}),

		EdgesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "workflow",
			Name:      "edges_total",
			Help:      "Total edge evaluations by outcome.",
		}, []string{"taken"}),

		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busara",
			Subsystem: "workflow",
			Name:      "active_runs",
			Help:      "Number of currently running workflows.",
		}),

		LoopAbortsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "workflow",
			Name:      "loop_aborts_total",
			Help:      "Runs aborted for exceeding the execution step limit.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.NodesTotal,
		m.NodeDuration,
		m.EdgesTotal,
		m.ActiveRuns,
		m.LoopAbortsTotal,
	)

	return m
}

// observeRun records a finished run; safe on a nil receiver.
func (m *Metrics) observeRun(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(took.Seconds())
}

// observeNode records a finished node; safe on a nil receiver.
func (m *Metrics) observeNode(nodeType NodeType, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.NodesTotal.WithLabelValues(string(nodeType), status).Inc()
	m.NodeDuration.WithLabelValues(string(nodeType)).Observe(took.Seconds())
}

// observeEdge records an edge evaluation; safe on a nil receiver.
func (m *Metrics) observeEdge(taken bool) {
	if m == nil {
		return
	}
	if taken {
		m.EdgesTotal.WithLabelValues("true").Inc()
	} else {
		m.EdgesTotal.WithLabelValues("false").Inc()
	}
}

// trackActive adjusts the active-runs gauge; safe on a nil receiver.
func (m *Metrics) trackActive(delta float64) {
	if m == nil {
		return
	}
	m.ActiveRuns.Add(delta)
}

// observeLoopAbort counts a step-limit abort; safe on a nil receiver.
func (m *Metrics) observeLoopAbort() {
	if m == nil {
		return
	}
	m.LoopAbortsTotal.Inc()
}
