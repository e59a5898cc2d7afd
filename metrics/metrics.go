// Package metrics provides ChainMetrics, a small set of Prometheus
// collectors a HandlerChain reports against, trimmed from the gateway's
// generic pkg/metrics abstraction down to the counters/histograms this
// engine actually emits.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChainMetrics groups the collectors a HandlerChain updates during
// execute/replay. Construct with New and register once per process;
// multiple chains sharing a registry share these collectors, keyed by
// the "chain" label.
type ChainMetrics struct {
	Executions       *prometheus.CounterVec
	Drops            *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	DestinationRetry *prometheus.CounterVec
}

// New builds ChainMetrics and registers its collectors against reg. A
// nil reg is valid and simply skips registration, so callers that don't
// care about metrics can omit a ChainOption entirely instead of passing
// ChainMetrics around.
func New(reg prometheus.Registerer) *ChainMetrics {
	m := &ChainMetrics{
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handlerchain_executions_total",
			Help: "Total handler chain execute/replay invocations by chain and outcome.",
		}, []string{"chain", "outcome"}),
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handlerchain_drops_total",
			Help: "Total messages dropped by a filter processor, by chain.",
		}, []string{"chain"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handlerchain_failures_total",
			Help: "Total execute/replay failures by chain and stage.",
		}, []string{"chain", "stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "handlerchain_stage_duration_seconds",
			Help:    "Duration of each pipeline stage by chain and stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain", "stage"}),
		DestinationRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handlerchain_destination_retries_total",
			Help: "Total destination retry attempts by chain and destination.",
		}, []string{"chain", "destination"}),
	}

	if reg != nil {
		reg.MustRegister(m.Executions, m.Drops, m.Failures, m.StageDuration, m.DestinationRetry)
	}
	return m
}
