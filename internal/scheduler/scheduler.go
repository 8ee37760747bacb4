// Package scheduler serializes outbound ledger requests through a single
// fixed-rate FIFO queue.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of queued work. Tasks must not block: anything slow should be
// started on its own goroutine from inside the task.
type Task func()

// Scheduler runs at most one task per interval in submission order.
type Scheduler struct {
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	queue []Task
}

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// New creates a scheduler. Interval must be positive.
func New(cfg *Config) *Scheduler {
	return &Scheduler{
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}
}

// Submit appends a task to the queue.
func (s *Scheduler) Submit(task Task) {
	if task == nil {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, task)
	depth := len(s.queue)
	s.mu.Unlock()

	QueueDepth.Set(float64(depth))
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run drains the queue until ctx is cancelled. Each iteration runs at most one
// task and then waits a full interval whether or not a task ran.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler-starting", zap.Duration("interval", s.interval))

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		if task := s.pop(); task != nil {
			s.runTask(task)
		}

		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler-stopping", zap.Int("pending", s.Len()))
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) pop() Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil
	}

	task := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	QueueDepth.Set(float64(len(s.queue)))
	return task
}

func (s *Scheduler) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			TaskPanicsTotal.Inc()
			s.logger.Error("scheduler-task-panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	TasksExecutedTotal.Inc()
	task()
}
