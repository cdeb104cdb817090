package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the distribution engine. A nil
// *Metrics is valid and records nothing, which keeps tests off the global
// registry.
type Metrics struct {
	DistributionsExecuted prometheus.Counter
	DistributionsSkipped  prometheus.Counter
	DistributionFailures  prometheus.Counter
	PointsDistributed     prometheus.Counter
	TickDuration          prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DistributionsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lorefall_distributions_executed_total",
			Help: "Total number of scheduled distributions executed to completion",
		}),
		DistributionsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lorefall_distributions_skipped_total",
			Help: "Total number of distributions skipped because the master recipient was unresolved",
		}),
		DistributionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lorefall_distribution_failures_total",
			Help: "Total number of per-domain distribution executions that failed",
		}),
		PointsDistributed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lorefall_points_distributed_minor_units_total",
			Help: "Total knowledge points credited to recipients and treasuries, in minor units",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lorefall_scheduler_tick_duration_seconds",
			Help:    "Duration of one scheduler scan over all due domains",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncExecuted increments the executed-distributions counter.
func (m *Metrics) IncExecuted() {
	if m != nil {
		m.DistributionsExecuted.Inc()
	}
}

// IncSkipped increments the skipped-distributions counter.
func (m *Metrics) IncSkipped() {
	if m != nil {
		m.DistributionsSkipped.Inc()
	}
}

// IncFailures increments the failed-executions counter.
func (m *Metrics) IncFailures() {
	if m != nil {
		m.DistributionFailures.Inc()
	}
}

// AddPointsDistributed records credited minor units.
func (m *Metrics) AddPointsDistributed(minor int64) {
	if m != nil && minor > 0 {
		m.PointsDistributed.Add(float64(minor))
	}
}

// ObserveTick records the duration of one scheduler scan.
func (m *Metrics) ObserveTick(seconds float64) {
	if m != nil {
		m.TickDuration.Observe(seconds)
	}
}
