package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// RPCRequestsTotal counts JSON-RPC calls by method and outcome.
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_rpc_requests_total",
			Help: "Total number of ledger RPC requests",
		},
		[]string{"method", "status"},
	)

	// RPCDurationSeconds tracks JSON-RPC latency.
	RPCDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liquidator_rpc_duration_seconds",
			Help:    "Duration of ledger RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ConfirmDurationSeconds tracks time from submission to confirmation.
	ConfirmDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liquidator_confirm_duration_seconds",
		Help:    "Time spent waiting for transaction confirmation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})
)
