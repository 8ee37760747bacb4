package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// NativeBalance tracks the native token held for fees.
	NativeBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_wallet_native_balance",
		Help: "Current native token balance (whole tokens)",
	})

	// StableBalance tracks the stable inventory used to repay debt.
	StableBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_wallet_stable_balance",
		Help: "Current stable token balance (whole tokens)",
	})

	// UpdateErrorsTotal tracks the number of failed update attempts.
	UpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liquidator_wallet_update_errors_total",
		Help: "Total number of failed wallet update attempts",
	})

	// UpdateDuration tracks the time taken to fetch wallet data.
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liquidator_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet data (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp tracks the Unix timestamp of the last successful update.
	LastUpdateTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful wallet update",
	})
)
