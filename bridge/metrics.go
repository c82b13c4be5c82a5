package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	phaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctp_bridge_phase_transitions_total",
			Help: "Number of transfer phase transitions, labeled by the phase entered.",
		},
		[]string{"phase"},
	)

	runsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cctp_bridge_runs_completed_total",
			Help: "Number of bridge runs where every destination completed.",
		},
	)

	runsFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cctp_bridge_runs_failed_total",
			Help: "Number of bridge runs aborted by a failed transfer.",
		},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cctp_bridge_run_duration_seconds",
			Help:    "Wall clock duration of completed bridge runs.",
			Buckets: []float64{1, 5, 15, 60, 300, 600, 1200, 2400},
		},
	)

	transfersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cctp_bridge_transfers_in_flight",
			Help: "Transfers currently moving through the bridge pipeline.",
		},
	)
)
