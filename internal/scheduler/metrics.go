package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// QueueDepth tracks pending scheduler tasks.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liquidator_scheduler_queue_depth",
		Help: "Number of tasks waiting in the rate-limited scheduler",
	})

	// TasksExecutedTotal counts tasks run by the scheduler.
	TasksExecutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liquidator_scheduler_tasks_executed_total",
		Help: "Total number of scheduler tasks executed",
	})

	// TaskPanicsTotal counts tasks that panicked.
	TaskPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liquidator_scheduler_task_panics_total",
		Help: "Total number of scheduler tasks that panicked",
	})
)
