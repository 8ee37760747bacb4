// Package coordinator decides when to liquidate borrowers and drives attempts.
//
// Every tick the coordinator rebuilds the price table from the price mirrors,
// evaluates each borrower with decoded position data through a fresh planner,
// and fires an attempt for unsafe borrowers that are outside their cool-down
// window and have no attempt in flight.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/lending-liquidator/internal/execution"
	"github.com/mselser95/lending-liquidator/internal/mirror"
	"github.com/mselser95/lending-liquidator/internal/notify"
	"github.com/mselser95/lending-liquidator/internal/planner"
	"github.com/mselser95/lending-liquidator/internal/storage"
	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

// Borrower is the per-borrower state the coordinator reads and stamps.
type Borrower interface {
	Wallet() ledger.Address
	Snapshot() *types.PositionSnapshot
	LastFired() time.Time
	MarkFired(at time.Time)
	TryBeginAttempt() bool
	EndAttempt()
	InFlight() bool
}

// BorrowerLister enumerates the borrowers currently watched.
type BorrowerLister interface {
	Borrowers() []Borrower
}

// PriceSource is one pool's live price.
type PriceSource interface {
	Pool() types.PoolID
	Price() (float64, bool)
}

// PlanExecutor runs an execution plan against the ledger.
type PlanExecutor interface {
	Execute(ctx context.Context, plan *types.ExecutionPlan) (*execution.Result, error)
}

// Breaker gates attempts on trading inventory.
type Breaker interface {
	IsEnabled() bool
	RecordLiquidation(sizeUSD float64)
}

// Readiness is notified once every price has been received.
type Readiness interface {
	SetReady(ready bool)
}

// Config holds coordinator dependencies.
type Config struct {
	Borrowers BorrowerLister
	Prices    []PriceSource
	Pools     planner.PoolSet
	// Executor may be nil in dry-run mode.
	Executor  PlanExecutor
	Breaker   Breaker
	Storage   storage.Storage
	Notifier  notify.Notifier
	Readiness Readiness

	Mode               string
	EvaluationInterval time.Duration
	Cooldown           time.Duration
	PriceWaitPoll      time.Duration
	MaxLiquidationUSD  float64

	Logger *zap.Logger
}

// Coordinator evaluates borrowers on a fixed tick and fires liquidations.
type Coordinator struct {
	borrowers BorrowerLister
	prices    []PriceSource
	pools     planner.PoolSet
	executor  PlanExecutor
	breaker   Breaker
	storage   storage.Storage
	notifier  notify.Notifier
	readiness Readiness

	mode      string
	interval  time.Duration
	cooldown  time.Duration
	pricePoll time.Duration
	maxUSD    float64

	logger *zap.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// New creates a coordinator.
func New(cfg *Config) (*Coordinator, error) {
	switch {
	case cfg.Borrowers == nil:
		return nil, errors.New("borrower lister cannot be nil")
	case cfg.Pools == nil:
		return nil, errors.New("pools cannot be nil")
	case cfg.Storage == nil:
		return nil, errors.New("storage cannot be nil")
	case cfg.Logger == nil:
		return nil, errors.New("logger cannot be nil")
	case cfg.EvaluationInterval <= 0:
		return nil, fmt.Errorf("evaluation interval must be positive, got %s", cfg.EvaluationInterval)
	case cfg.PriceWaitPoll <= 0:
		return nil, fmt.Errorf("price wait poll must be positive, got %s", cfg.PriceWaitPoll)
	case cfg.Cooldown < 0:
		return nil, fmt.Errorf("cooldown cannot be negative, got %s", cfg.Cooldown)
	}

	switch cfg.Mode {
	case config.ModeDryRun:
	case config.ModePaper, config.ModeLive:
		if cfg.Executor == nil {
			return nil, fmt.Errorf("executor required in %s mode", cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("unknown execution mode %q", cfg.Mode)
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}

	return &Coordinator{
		borrowers: cfg.Borrowers,
		prices:    cfg.Prices,
		pools:     cfg.Pools,
		executor:  cfg.Executor,
		breaker:   cfg.Breaker,
		storage:   cfg.Storage,
		notifier:  notifier,
		readiness: cfg.Readiness,
		mode:      cfg.Mode,
		interval:  cfg.EvaluationInterval,
		cooldown:  cfg.Cooldown,
		pricePoll: cfg.PriceWaitPoll,
		maxUSD:    cfg.MaxLiquidationUSD,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Run waits for every price, evaluates once, then evaluates on each tick until
// ctx is done.
// It waits for in-flight attempts before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.wg.Wait()

	err := c.WaitForPrices(ctx)
	if err != nil {
		return err
	}

	if c.readiness != nil {
		c.readiness.SetReady(true)
	}
	c.logger.Info("coordinator-started",
		zap.String("mode", c.mode),
		zap.Duration("interval", c.interval),
		zap.Duration("cooldown", c.cooldown))

	c.Evaluate(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator-stopping")
			return ctx.Err()
		case <-ticker.C:
			c.Evaluate(ctx)
		}
	}
}

// PricesReady reports whether every price source has a value.
func (c *Coordinator) PricesReady() bool {
	return c.missingPrices() == 0
}

// WaitForPrices polls until every price source has a value.
func (c *Coordinator) WaitForPrices(ctx context.Context) error {
	ticker := time.NewTicker(c.pricePoll)
	defer ticker.Stop()

	for {
		missing := c.missingPrices()
		PricesMissing.Set(float64(missing))
		if missing == 0 {
			c.logger.Info("prices-ready", zap.Int("count", len(c.prices)))
			return nil
		}

		c.logger.Info("waiting-for-prices",
			zap.Int("missing", missing),
			zap.Int("total", len(c.prices)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) missingPrices() int {
	missing := 0
	for _, p := range c.prices {
		if _, ok := p.Price(); !ok {
			missing++
		}
	}
	return missing
}

// PriceTable builds a table from the current price payloads. Pools without a
// price are left out.
func (c *Coordinator) PriceTable() types.PriceTable {
	table := make(types.PriceTable, len(c.prices))
	for _, p := range c.prices {
		if price, ok := p.Price(); ok {
			table[p.Pool()] = price
		}
	}
	return table
}

// Evaluate runs one pass over every borrower and returns how many attempts
// were fired. Attempts run in their own goroutines; see Wait.
func (c *Coordinator) Evaluate(ctx context.Context) int {
	start := time.Now()
	defer func() {
		EvaluationDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	prices := c.PriceTable()
	borrowers := c.borrowers.Borrowers()
	BorrowersTracked.Set(float64(len(borrowers)))

	var evaluated, unsafe, fired int
	for _, b := range borrowers {
		snap := b.Snapshot()
		if snap == nil {
			continue
		}
		evaluated++

		wallet := b.Wallet().String()
		p := planner.New(wallet, snap, prices, c.pools, c.maxUSD)
		if !p.ShouldLiquidate() {
			continue
		}
		unsafe++

		if !c.coolingDownElapsed(b) {
			continue
		}

		plan, err := p.BuildExecutionPlan()
		if err != nil {
			c.logger.Debug("plan-build-failed",
				zap.String("wallet", wallet),
				zap.Error(err))
			continue
		}

		if !b.TryBeginAttempt() {
			continue
		}

		fired++
		c.wg.Add(1)
		go c.attempt(ctx, b, plan)
	}

	EvaluationsTotal.Inc()
	UnsafeBorrowers.Set(float64(unsafe))
	c.logger.Debug("evaluation-complete",
		zap.Int("borrowers", len(borrowers)),
		zap.Int("evaluated", evaluated),
		zap.Int("unsafe", unsafe),
		zap.Int("fired", fired))

	return fired
}

// Wait blocks until every fired attempt has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) coolingDownElapsed(b Borrower) bool {
	last := b.LastFired()
	if last.IsZero() {
		return true
	}
	return c.now().Sub(last) > c.cooldown
}

func (c *Coordinator) attempt(ctx context.Context, b Borrower, plan *types.ExecutionPlan) {
	defer c.wg.Done()
	defer b.EndAttempt()

	// The cool-down window is measured from the start of the attempt.
	fireAt := c.now()
	attempt := &types.LiquidationAttempt{
		ID:        uuid.New().String(),
		Mode:      c.mode,
		Plan:      *plan,
		StartedAt: fireAt,
	}
	logger := c.logger.With(
		zap.String("attempt-id", attempt.ID),
		zap.String("wallet", plan.Borrower))

	if c.breaker != nil && !c.breaker.IsEnabled() {
		attempt.Status = types.AttemptSkipped
		attempt.Error = "circuit breaker open"
		attempt.FinishedAt = c.now()
		logger.Warn("liquidation-skipped-circuit-breaker",
			zap.Float64("liquidated-usd", plan.LiquidatedValue))
		c.record(ctx, logger, attempt)
		return
	}

	logger.Info("liquidation-firing",
		zap.Uint8("collateral-pool", uint8(plan.CollateralPool)),
		zap.Uint8("debt-pool", uint8(plan.DebtPool)),
		zap.Float64("min-collateral", plan.MinCollateral),
		zap.Float64("debt-repay", plan.DebtRepay),
		zap.Float64("liquidated-usd", plan.LiquidatedValue),
		zap.Float64("health-ratio", plan.HealthRatio))

	if c.mode == config.ModeDryRun {
		attempt.Status = types.AttemptSkipped
		attempt.Error = "dry-run"
	} else {
		result, err := c.executor.Execute(ctx, plan)
		if result != nil {
			attempt.Signatures = result.AllSignatures()
		}
		if err != nil {
			attempt.Status = types.AttemptFailed
			attempt.Error = err.Error()
			logger.Error("liquidation-failed", zap.Error(err), zap.Stack("stack"))
		} else {
			attempt.Status = types.AttemptSucceeded
			if c.breaker != nil {
				c.breaker.RecordLiquidation(plan.LiquidatedValue)
			}
		}
	}

	attempt.FinishedAt = c.now()
	b.MarkFired(fireAt)

	logger.Info("liquidation-attempt-finished",
		zap.String("status", string(attempt.Status)),
		zap.Strings("signatures", attempt.Signatures),
		zap.Duration("duration", attempt.Duration()))

	c.record(ctx, logger, attempt)
}

func (c *Coordinator) record(ctx context.Context, logger *zap.Logger, attempt *types.LiquidationAttempt) {
	AttemptsTotal.WithLabelValues(c.mode, string(attempt.Status)).Inc()

	// Records are kept even when shutdown interrupts the attempt.
	ctx = context.WithoutCancel(ctx)

	err := c.storage.StoreAttempt(ctx, attempt)
	if err != nil {
		logger.Warn("attempt-store-failed", zap.Error(err))
	}

	err = c.notifier.NotifyAttempt(ctx, attempt)
	if err != nil {
		logger.Warn("attempt-notify-failed", zap.Error(err))
	}
}

// Pages adapts page mirrors into a BorrowerLister.
type Pages []*mirror.PageMirror

// Borrowers implements BorrowerLister.
func (p Pages) Borrowers() []Borrower {
	var out []Borrower
	for _, page := range p {
		for _, b := range page.Borrowers() {
			out = append(out, b)
		}
	}
	return out
}
