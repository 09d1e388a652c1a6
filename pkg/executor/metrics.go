package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts activity outcomes and observes run durations.
type Metrics struct {
	dispatched  prometheus.Counter
	completed   prometheus.Counter
	failed      prometheus.Counter
	skipped     prometheus.Counter
	runDuration prometheus.Histogram
}

// NewMetrics registers executor metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "maestro_executor_activities_dispatched_total",
			Help: "Activities dispatched for execution.",
		}),
		completed: factory.NewCounter(prometheus.CounterOpts{
			Name: "maestro_executor_activities_completed_total",
			Help: "Activities that completed successfully.",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "maestro_executor_activities_failed_total",
			Help: "Activities that failed.",
		}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "maestro_executor_activities_skipped_total",
			Help: "Activities skipped by unsatisfied conditions.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "maestro_executor_run_duration_seconds",
			Help:    "Wall-clock duration of workflow runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}
