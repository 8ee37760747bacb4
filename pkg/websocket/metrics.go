package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveConnections tracks live pubsub connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_ws_active_connections",
		Help: "Number of active WebSocket connections",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liquidator_ws_reconnect_attempts_total",
		Help: "Total number of WebSocket reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liquidator_ws_reconnect_failures_total",
		Help: "Total number of WebSocket reconnection failures",
	})

	// MessagesReceivedTotal tracks frames received by kind.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_ws_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
		[]string{"kind"},
	)

	// RequestsTotal tracks pubsub requests by method and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_ws_requests_total",
			Help: "Total number of pubsub requests",
		},
		[]string{"method", "status"},
	)

	// MessageLatencySeconds tracks handler dispatch time.
	MessageLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liquidator_ws_dispatch_seconds",
		Help:    "Time spent delivering a notification to its handler",
		Buckets: prometheus.DefBuckets,
	})

	// SubscriptionCount tracks registered account subscriptions.
	SubscriptionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_ws_subscription_count",
		Help: "Number of registered account subscriptions",
	})

	// MessagesDroppedTotal tracks notifications dropped before dispatch.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_ws_messages_dropped_total",
			Help: "Total number of notifications dropped",
		},
		[]string{"reason"},
	)

	// ConnectionDuration tracks WebSocket connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liquidator_ws_connection_duration_seconds",
		Help:    "Duration of WebSocket connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	})

	// UnsubscriptionsTotal tracks account unsubscriptions.
	UnsubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liquidator_ws_unsubscriptions_total",
		Help: "Total number of account unsubscriptions",
	})

	// PoolActiveConnections tracks managers in the pool.
	PoolActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_ws_pool_active_connections",
		Help: "Number of managers in the WebSocket pool",
	})

	// PoolSubscriptionDistribution tracks subscriptions per pool manager.
	PoolSubscriptionDistribution = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liquidator_ws_pool_subscriptions",
			Help: "Account subscriptions held by each pool manager",
		},
		[]string{"manager"},
	)
)
