package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// StepsBuiltTotal tracks assembled liquidation steps by kind.
	StepsBuiltTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_execution_steps_built_total",
			Help: "Total number of liquidation steps assembled",
		},
		[]string{"step"},
	)

	// UnitsTotal tracks atomic units submitted and their outcome.
	UnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_execution_units_total",
			Help: "Total number of atomic transaction units submitted",
		},
		[]string{"status"},
	)

	// TransactionsSubmittedTotal tracks transactions handed to a submitter.
	TransactionsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_execution_transactions_submitted_total",
			Help: "Total number of transactions submitted",
		},
		[]string{"submitter", "status"},
	)

	// ResidualSweepsTotal tracks residual sell-offs.
	ResidualSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_execution_residual_sweeps_total",
			Help: "Total number of residual sweeps by outcome",
		},
		[]string{"status"},
	)

	// ExecutionDurationSeconds tracks end-to-end execution time.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liquidator_execution_duration_seconds",
		Help:    "Duration of a liquidation execution",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})
)
