package iris

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctp_iris_polls_total",
			Help: "Total number of attestation status polls per source domain",
		}, []string{"source_domain"})

	apiErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctp_iris_api_errors_total",
			Help: "Total number of failed Iris API requests by error class",
		}, []string{"error"})

	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cctp_iris_request_duration_seconds",
			Help:    "Latency of Iris API requests",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		})

	attestationsCompleteTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cctp_iris_attestations_complete_total",
			Help: "Total number of attestations successfully fetched",
		})

	attestationTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cctp_iris_attestation_timeouts_total",
			Help: "Total number of attestation waits that hit their wall-clock budget",
		})
)
