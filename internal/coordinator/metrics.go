package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	EvaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liquidator_coordinator_evaluations_total",
			Help: "Evaluation passes over all borrowers",
		},
	)

	EvaluationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "liquidator_coordinator_evaluation_duration_seconds",
			Help:    "Time spent evaluating all borrowers in one pass",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	BorrowersTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liquidator_coordinator_borrowers_tracked",
			Help: "Borrowers seen in the last evaluation pass",
		},
	)

	UnsafeBorrowers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liquidator_coordinator_unsafe_borrowers",
			Help: "Borrowers with a health ratio above 1 in the last pass",
		},
	)

	PricesMissing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liquidator_coordinator_prices_missing",
			Help: "Price mirrors still waiting for their first payload",
		},
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_coordinator_attempts_total",
			Help: "Liquidation attempts by mode and status",
		},
		[]string{"mode", "status"},
	)
)
