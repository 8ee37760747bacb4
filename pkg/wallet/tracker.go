package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"go.uber.org/zap"
)

// BalanceFetcher returns balances for an owner. *Client implements it.
type BalanceFetcher interface {
	GetBalances(ctx context.Context, owner ledger.Address) (*Balances, error)
}

// Tracker periodically fetches wallet balances and updates Prometheus metrics.
type Tracker struct {
	client       BalanceFetcher
	address      ledger.Address
	pollInterval time.Duration
	logger       *zap.Logger
}

// Config holds tracker configuration.
type Config struct {
	Client       BalanceFetcher
	Address      ledger.Address
	PollInterval time.Duration
	Logger       *zap.Logger
}

// New creates a new wallet tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	return &Tracker{
		client:       cfg.Client,
		address:      cfg.Address,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}, nil
}

// Run polls until ctx is cancelled. It always returns ctx.Err().
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.String()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		if err := t.poll(ctx); err != nil && ctx.Err() == nil {
			t.logger.Error("wallet-poll-failed", zap.Error(err))
			UpdateErrorsTotal.Inc()
		}

		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tracker) poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	pollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	balances, err := t.client.GetBalances(pollCtx, t.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	NativeBalance.Set(balances.NativeUI())
	StableBalance.Set(balances.StableUI())
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	t.logger.Debug("wallet-poll-complete",
		zap.Float64("native", balances.NativeUI()),
		zap.Float64("stable", balances.StableUI()),
		zap.Duration("duration", time.Since(start)))

	return nil
}
