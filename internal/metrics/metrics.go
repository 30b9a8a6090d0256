// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "derby_poll_outcomes_total",
		Help: "pollAndExecute results, labeled by reported status",
	}, []string{"status"})

	CASAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "derby_cas_attempts_total",
		Help: "Conditional status transitions, labeled by entity, target status and outcome",
	}, []string{"entity", "to", "outcome"})

	ChainQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "derby_chain_query_duration_seconds",
		Help:    "Latency of chain indexer calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"call"})

	ChainQueryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "derby_chain_query_failures_total",
		Help: "Failed chain indexer calls, labeled by call and reason",
	}, []string{"call", "reason"})

	RaceResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "derby_race_resolutions_total",
		Help: "Race resolve attempts, labeled by outcome",
	}, []string{"outcome"})

	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "derby_race_archive_failures_total",
		Help: "Resolution records that could not be archived",
	})
)

// CAS records a conditional transition attempt.
func CAS(entity, to string, won bool) {
	outcome := "lost"
	if won {
		outcome = "won"
	}
	CASAttempts.WithLabelValues(entity, to, outcome).Inc()
}
