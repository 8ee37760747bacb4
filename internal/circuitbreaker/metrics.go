package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// Enabled is 1 while liquidations may run.
	Enabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_circuit_breaker_enabled",
		Help: "Whether the circuit breaker allows liquidations (1=enabled, 0=disabled)",
	})

	// StableBalance is the last checked stable balance.
	StableBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_circuit_breaker_stable_balance",
		Help: "Last checked stable token balance",
	})

	// DisableThreshold is the balance below which liquidations pause.
	DisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_circuit_breaker_disable_threshold",
		Help: "Stable balance threshold for pausing liquidations",
	})

	// EnableThreshold is the balance at which liquidations resume.
	EnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_circuit_breaker_enable_threshold",
		Help: "Stable balance threshold for resuming liquidations",
	})

	// AvgLiquidationUSD is the rolling average liquidation size.
	AvgLiquidationUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_circuit_breaker_avg_liquidation_usd",
		Help: "Rolling average of recent liquidation sizes in USD",
	})

	// StateChanges counts enable/disable transitions.
	StateChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liquidator_circuit_breaker_state_changes_total",
		Help: "Total number of circuit breaker state changes",
	})

	// CheckDuration tracks balance check latency.
	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liquidator_circuit_breaker_check_duration_seconds",
		Help:    "Time taken to check the stable balance",
		Buckets: prometheus.DefBuckets,
	})
)
