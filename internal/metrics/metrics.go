// Package metrics exposes the relayer's Prometheus instrumentation:
// consecutive-error streaks, backoff delay, and round/match throughput.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConsecutiveErrors tracks the relayer's current consecutive-failure
	// streak per stage, reset to zero on success. The relayer reports one
	// stage, "pipeline", covering close, match and postRoot together.
	ConsecutiveErrors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shadowpool",
		Subsystem: "relayer",
		Name:      "consecutive_errors",
		Help:      "Current consecutive failure count for a relayer pipeline stage.",
	}, []string{"stage"})

	// RoundsProcessed counts rounds that completed a pipeline stage.
	RoundsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shadowpool",
		Subsystem: "relayer",
		Name:      "rounds_processed_total",
		Help:      "Rounds that completed a given relayer pipeline stage.",
	}, []string{"stage", "outcome"})

	// MatchesEmitted counts matches emitted by the matching engine.
	MatchesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shadowpool",
		Subsystem: "matcher",
		Name:      "matches_emitted_total",
		Help:      "Total matches emitted across all rounds.",
	})

	// BackoffSeconds observes the relayer's current retry delay.
	BackoffSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shadowpool",
		Subsystem: "relayer",
		Name:      "backoff_seconds",
		Help:      "Current exponential backoff delay, in seconds, per stage.",
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(ConsecutiveErrors, RoundsProcessed, MatchesEmitted, BackoffSeconds)
}
