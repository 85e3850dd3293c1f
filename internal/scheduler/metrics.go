package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the workflow scheduler.
type Metrics struct {
	RunsFired     prometheus.Counter
	RunsSucceeded prometheus.Counter
	RunsFailed    prometheus.Counter
	RunsSkipped   prometheus.Counter
	RunDuration   prometheus.Histogram
}

// NewMetrics creates and registers scheduler metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RunsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "scheduler",
			Name:      "runs_fired_total",
			Help:      "Total scheduled workflow runs started.",
		}),
		RunsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "scheduler",
			Name:      "runs_succeeded_total",
			Help:      "Total scheduled workflow runs that completed successfully.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "scheduler",
			Name:      "runs_failed_total",
			Help:      "Total scheduled workflow runs that failed.",
		}),
		RunsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "scheduler",
			Name:      "runs_skipped_total",
			Help:      "Total scheduled runs skipped because the workflow was no longer active.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of each scheduled workflow run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}

	reg.MustRegister(
		m.RunsFired,
		m.RunsSucceeded,
		m.RunsFailed,
		m.RunsSkipped,
		m.RunDuration,
	)

	return m
}
