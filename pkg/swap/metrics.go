package swap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SwapBuildsTotal counts swap builds by venue and outcome.
	SwapBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_swap_builds_total",
			Help: "Total number of swap instruction builds",
		},
		[]string{"venue", "status"},
	)

	// SwapBuildDurationSeconds tracks time spent quoting and building swaps.
	SwapBuildDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liquidator_swap_build_duration_seconds",
			Help:    "Time to quote and build a swap",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"venue"},
	)
)
