// Package wallet reads the liquidator's inventory from the ledger and exports
// it as metrics.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"go.uber.org/zap"
)

// NativeDecimals is the precision of the ledger's native (fee) token.
const NativeDecimals = 9

// BalanceRPC is the part of the ledger RPC the wallet client needs.
type BalanceRPC interface {
	Balance(ctx context.Context, addr ledger.Address) (uint64, error)
	TokenAccountsByOwner(ctx context.Context, owner, mint ledger.Address) ([]ledger.TokenAccount, error)
}

// Client fetches native and stable balances for an owner.
type Client struct {
	rpc            BalanceRPC
	stableMint     ledger.Address
	stableDecimals uint8
	logger         *zap.Logger
}

// Balances holds on-chain inventory in base units.
type Balances struct {
	Native         uint64
	Stable         uint64
	StableDecimals uint8
	StableAccounts int
}

// NativeUI returns the native balance in whole tokens.
func (b *Balances) NativeUI() float64 {
	return ledger.FromNative(b.Native, NativeDecimals)
}

// StableUI returns the stable balance in whole tokens.
func (b *Balances) StableUI() float64 {
	return ledger.FromNative(b.Stable, b.StableDecimals)
}

// NewClient creates a wallet client for the stable asset identified by stableMint.
func NewClient(rpc BalanceRPC, stableMint ledger.Address, stableDecimals uint8, logger *zap.Logger) (*Client, error) {
	if rpc == nil {
		return nil, errors.New("rpc cannot be nil")
	}
	if err := stableMint.Validate(); err != nil {
		return nil, fmt.Errorf("stable mint: %w", err)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Client{
		rpc:            rpc,
		stableMint:     stableMint,
		stableDecimals: stableDecimals,
		logger:         logger,
	}, nil
}

// GetBalances fetches owner's native balance and the sum of its stable token accounts.
func (c *Client) GetBalances(ctx context.Context, owner ledger.Address) (*Balances, error) {
	native, err := c.rpc.Balance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("get native balance: %w", err)
	}

	accounts, err := c.rpc.TokenAccountsByOwner(ctx, owner, c.stableMint)
	if err != nil {
		return nil, fmt.Errorf("get stable accounts: %w", err)
	}

	balances := &Balances{
		Native:         native,
		StableDecimals: c.stableDecimals,
		StableAccounts: len(accounts),
	}
	for _, acc := range accounts {
		balances.Stable += acc.Balance.Amount
	}

	c.logger.Debug("balances-fetched",
		zap.String("owner", owner.String()),
		zap.Uint64("native", balances.Native),
		zap.Uint64("stable", balances.Stable),
		zap.Int("stable-accounts", balances.StableAccounts))

	return balances, nil
}
