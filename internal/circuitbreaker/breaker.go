// Package circuitbreaker pauses liquidations when the stable inventory used to
// repay debt runs low.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/wallet"
	"go.uber.org/zap"
)

// windowSize is how many recent liquidations feed the dynamic threshold.
const windowSize = 20

// BalanceCircuitBreaker tracks the stable balance and gates execution. The
// disable threshold scales with the average recent liquidation size, and the
// breaker re-enables only once the balance clears a higher threshold.
type BalanceCircuitBreaker struct {
	enabled atomic.Bool

	checkInterval   time.Duration
	wallet          wallet.BalanceFetcher
	address         ledger.Address
	logger          *zap.Logger
	tradeMultiplier float64
	minAbsolute     float64
	hysteresisRatio float64

	mu               sync.RWMutex
	lastBalance      float64
	lastCheck        time.Time
	recent           []float64
	disableThreshold float64
	enableThreshold  float64
}

// Config holds circuit breaker configuration.
type Config struct {
	CheckInterval   time.Duration
	TradeMultiplier float64
	MinAbsolute     float64
	HysteresisRatio float64
	Wallet          wallet.BalanceFetcher
	Address         ledger.Address
	Logger          *zap.Logger
}

// Status is a point-in-time view of the breaker.
type Status struct {
	Enabled          bool      `json:"enabled"`
	LastBalance      float64   `json:"last_balance"`
	LastCheck        time.Time `json:"last_check"`
	DisableThreshold float64   `json:"disable_threshold"`
	EnableThreshold  float64   `json:"enable_threshold"`
	AvgLiquidation   float64   `json:"avg_liquidation"`
	RecentCount      int       `json:"recent_count"`
}

// New creates a breaker. It starts enabled.
func New(cfg *Config) (*BalanceCircuitBreaker, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config cannot be nil")
	case cfg.Wallet == nil:
		return nil, errors.New("wallet cannot be nil")
	case cfg.Logger == nil:
		return nil, errors.New("logger cannot be nil")
	case cfg.CheckInterval <= 0:
		return nil, errors.New("check interval must be positive")
	case cfg.TradeMultiplier <= 0:
		return nil, errors.New("trade multiplier must be positive")
	case cfg.MinAbsolute <= 0:
		return nil, errors.New("min absolute must be positive")
	case cfg.HysteresisRatio < 1.0:
		return nil, errors.New("hysteresis ratio must be >= 1.0")
	}

	b := &BalanceCircuitBreaker{
		checkInterval:    cfg.CheckInterval,
		wallet:           cfg.Wallet,
		address:          cfg.Address,
		logger:           cfg.Logger,
		tradeMultiplier:  cfg.TradeMultiplier,
		minAbsolute:      cfg.MinAbsolute,
		hysteresisRatio:  cfg.HysteresisRatio,
		recent:           make([]float64, 0, windowSize),
		disableThreshold: cfg.MinAbsolute,
		enableThreshold:  cfg.MinAbsolute * cfg.HysteresisRatio,
	}
	b.enabled.Store(true)

	Enabled.Set(1)
	DisableThreshold.Set(b.disableThreshold)
	EnableThreshold.Set(b.enableThreshold)
	AvgLiquidationUSD.Set(0)

	return b, nil
}

// IsEnabled reports whether liquidations may run. Lock-free.
func (b *BalanceCircuitBreaker) IsEnabled() bool {
	return b.enabled.Load()
}

// RecordLiquidation feeds a completed liquidation's USD size into the window.
func (b *BalanceCircuitBreaker) RecordLiquidation(sizeUSD float64) {
	if sizeUSD <= 0 || math.IsNaN(sizeUSD) || math.IsInf(sizeUSD, 0) {
		b.logger.Warn("invalid-liquidation-size", zap.Float64("size", sizeUSD))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recent = append(b.recent, sizeUSD)
	if len(b.recent) > windowSize {
		b.recent = b.recent[1:]
	}

	avg := mean(b.recent)
	b.disableThreshold = math.Max(avg*b.tradeMultiplier, b.minAbsolute)
	b.enableThreshold = b.disableThreshold * b.hysteresisRatio

	AvgLiquidationUSD.Set(avg)
	DisableThreshold.Set(b.disableThreshold)
	EnableThreshold.Set(b.enableThreshold)

	b.logger.Debug("breaker-thresholds-updated",
		zap.Float64("avg-liquidation", avg),
		zap.Int("window", len(b.recent)),
		zap.Float64("disable-threshold", b.disableThreshold),
		zap.Float64("enable-threshold", b.enableThreshold))
}

// CheckBalance fetches the stable balance and applies the hysteresis rule.
func (b *BalanceCircuitBreaker) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() {
		CheckDuration.Observe(time.Since(start).Seconds())
	}()

	balances, err := b.wallet.GetBalances(ctx, b.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}
	balance := balances.StableUI()

	b.mu.Lock()
	b.lastBalance = balance
	b.lastCheck = time.Now()
	disable, enable := b.disableThreshold, b.enableThreshold
	b.mu.Unlock()

	StableBalance.Set(balance)

	wasEnabled := b.enabled.Load()
	switch {
	case wasEnabled && balance < disable:
		b.enabled.Store(false)
		Enabled.Set(0)
		StateChanges.Inc()
		b.logger.Warn("circuit-breaker-disabled",
			zap.Float64("balance", balance),
			zap.Float64("disable-threshold", disable),
			zap.Float64("enable-threshold", enable))
	case !wasEnabled && balance >= enable:
		b.enabled.Store(true)
		Enabled.Set(1)
		StateChanges.Inc()
		b.logger.Info("circuit-breaker-enabled",
			zap.Float64("balance", balance),
			zap.Float64("enable-threshold", enable))
	default:
		b.logger.Debug("breaker-balance-checked",
			zap.Float64("balance", balance),
			zap.Bool("enabled", wasEnabled))
	}

	return nil
}

// Start checks once immediately, then in the background every check interval
// until ctx is cancelled.
func (b *BalanceCircuitBreaker) Start(ctx context.Context) {
	b.logger.Info("circuit-breaker-started",
		zap.Duration("check-interval", b.checkInterval),
		zap.Float64("trade-multiplier", b.tradeMultiplier),
		zap.Float64("min-absolute", b.minAbsolute),
		zap.Float64("hysteresis-ratio", b.hysteresisRatio))

	if err := b.CheckBalance(ctx); err != nil {
		b.logger.Error("initial-balance-check-failed", zap.Error(err))
	}

	go b.monitorLoop(ctx)
}

func (b *BalanceCircuitBreaker) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("circuit-breaker-stopped")
			return
		case <-ticker.C:
			if err := b.CheckBalance(ctx); err != nil {
				b.logger.Error("balance-check-error", zap.Error(err))
			}
		}
	}
}

// GetStatus returns the current state.
func (b *BalanceCircuitBreaker) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		Enabled:          b.enabled.Load(),
		LastBalance:      b.lastBalance,
		LastCheck:        b.lastCheck,
		DisableThreshold: b.disableThreshold,
		EnableThreshold:  b.enableThreshold,
		AvgLiquidation:   mean(b.recent),
		RecentCount:      len(b.recent),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
