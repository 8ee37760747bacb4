package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveMirrors tracks live mirrors by kind.
	ActiveMirrors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liquidator_mirror_active",
			Help: "Number of initialized account mirrors",
		},
		[]string{"kind"},
	)

	// UpdatesTotal counts account updates applied by kind.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_mirror_updates_total",
			Help: "Total number of account updates received",
		},
		[]string{"kind"},
	)

	// DecodeErrorsTotal counts account payloads that failed to decode.
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_mirror_decode_errors_total",
			Help: "Total number of account payloads that failed to decode",
		},
		[]string{"kind"},
	)

	// FetchErrorsTotal counts failed initial account loads.
	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_mirror_fetch_errors_total",
			Help: "Total number of failed initial account fetches",
		},
		[]string{"kind"},
	)

	// PageChurnTotal counts borrower watchers added and removed by page diffs.
	PageChurnTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_mirror_page_churn_total",
			Help: "Total number of borrower watchers added or removed",
		},
		[]string{"op"},
	)
)
