// Package execution turns an execution plan into swaps, a liquidation and a
// residual sweep, landed as one or two atomic transactions.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/swap"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

// maxUnitSteps is how many steps fit in one atomic transaction.
const maxUnitSteps = 2

// PoolSet looks up pool configuration.
type PoolSet interface {
	Get(id types.PoolID) (config.PoolConfig, bool)
	Stable() config.PoolConfig
}

// TokenAccounts resolves the liquidator's token account for a mint.
type TokenAccounts interface {
	TokenAccount(ctx context.Context, owner, mint ledger.Address) (ledger.Address, error)
}

// BalanceReader reads token account balances.
type BalanceReader interface {
	TokenAccountBalance(ctx context.Context, account ledger.Address) (ledger.TokenAmount, error)
}

// Config holds executor dependencies and tuning.
type Config struct {
	Signer    ledger.Signer
	Pools     PoolSet
	Venues    *swap.Registry
	Builder   LiquidationBuilder
	Submitter Submitter
	Accounts  TokenAccounts
	Balances  BalanceReader

	MaxTradeSlippage float64
	MinSwapValueUSD  float64
	SettlementDelay  time.Duration
	ClearResidual    bool

	Logger *zap.Logger
}

// Step is one logical operation of a liquidation.
type Step struct {
	Name         string
	Instructions []ledger.Instruction
}

// Result summarizes a completed execution.
type Result struct {
	Steps              []string
	Units              int
	Signatures         []ledger.Signature
	ResidualSignatures []ledger.Signature
}

// AllSignatures returns unit and residual signatures in submission order.
func (r *Result) AllSignatures() []string {
	out := make([]string, 0, len(r.Signatures)+len(r.ResidualSignatures))
	for _, s := range r.Signatures {
		out = append(out, string(s))
	}
	for _, s := range r.ResidualSignatures {
		out = append(out, string(s))
	}
	return out
}

// Executor assembles and lands liquidations.
type Executor struct {
	signer    ledger.Signer
	pools     PoolSet
	venues    *swap.Registry
	builder   LiquidationBuilder
	submitter Submitter
	accounts  TokenAccounts
	balances  BalanceReader

	slippage      float64
	minSwapValue  float64
	settleDelay   time.Duration
	clearResidual bool

	logger *zap.Logger
	after  func(time.Duration) <-chan time.Time
}

// New creates an executor.
func New(cfg *Config) (*Executor, error) {
	switch {
	case cfg.Signer == nil:
		return nil, errors.New("signer cannot be nil")
	case cfg.Pools == nil:
		return nil, errors.New("pools cannot be nil")
	case cfg.Venues == nil:
		return nil, errors.New("venues cannot be nil")
	case cfg.Builder == nil:
		return nil, errors.New("liquidation builder cannot be nil")
	case cfg.Submitter == nil:
		return nil, errors.New("submitter cannot be nil")
	case cfg.Accounts == nil:
		return nil, errors.New("token accounts cannot be nil")
	case cfg.Balances == nil:
		return nil, errors.New("balance reader cannot be nil")
	case cfg.Logger == nil:
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.MaxTradeSlippage < 0 || cfg.MaxTradeSlippage >= 1 {
		return nil, fmt.Errorf("max trade slippage must be in [0, 1), got %f", cfg.MaxTradeSlippage)
	}

	return &Executor{
		signer:        cfg.Signer,
		pools:         cfg.Pools,
		venues:        cfg.Venues,
		builder:       cfg.Builder,
		submitter:     cfg.Submitter,
		accounts:      cfg.Accounts,
		balances:      cfg.Balances,
		slippage:      cfg.MaxTradeSlippage,
		minSwapValue:  cfg.MinSwapValueUSD,
		settleDelay:   cfg.SettlementDelay,
		clearResidual: cfg.ClearResidual,
		logger:        cfg.Logger,
		after:         time.After,
	}, nil
}

// tokenLegs holds the pools and token accounts touched by one plan.
type tokenLegs struct {
	collateral, debt, stable                      config.PoolConfig
	collateralAccount, debtAccount, stableAccount ledger.Address
}

// Execute assembles the steps for plan and submits them. Residual sweep failures
// are logged and never returned.
func (e *Executor) Execute(ctx context.Context, plan *types.ExecutionPlan) (*Result, error) {
	start := time.Now()
	defer func() {
		ExecutionDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	legs, err := e.resolveLegs(ctx, plan)
	if err != nil {
		return nil, err
	}

	steps, err := e.buildSteps(ctx, plan, legs)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, s := range steps {
		result.Steps = append(result.Steps, s.Name)
	}

	e.logger.Info("liquidation-assembled",
		zap.String("borrower", plan.Borrower),
		zap.Strings("steps", result.Steps),
		zap.Float64("liquidated-usd", plan.LiquidatedValue))

	for i, unit := range batchSteps(steps) {
		if i > 0 {
			e.logger.Info("settlement-wait", zap.Duration("delay", e.settleDelay))
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-e.after(e.settleDelay):
			}
		}

		sig, unitErr := e.submitUnit(ctx, i+1, unit)
		if sig != "" {
			result.Signatures = append(result.Signatures, sig)
		}
		if unitErr != nil {
			UnitsTotal.WithLabelValues("failed").Inc()
			return result, unitErr
		}
		UnitsTotal.WithLabelValues("confirmed").Inc()
		result.Units++
	}

	if e.clearResidual {
		result.ResidualSignatures = e.sweepResidual(ctx, legs)
	}

	e.logger.Info("liquidation-completed",
		zap.String("borrower", plan.Borrower),
		zap.Int("units", result.Units),
		zap.Strings("signatures", result.AllSignatures()))

	return result, nil
}

func (e *Executor) resolveLegs(ctx context.Context, plan *types.ExecutionPlan) (*tokenLegs, error) {
	collateral, ok := e.pools.Get(plan.CollateralPool)
	if !ok {
		return nil, fmt.Errorf("unknown collateral pool %d", plan.CollateralPool)
	}
	debt, ok := e.pools.Get(plan.DebtPool)
	if !ok {
		return nil, fmt.Errorf("unknown debt pool %d", plan.DebtPool)
	}

	legs := &tokenLegs{collateral: collateral, debt: debt, stable: e.pools.Stable()}
	owner := e.signer.PublicKey()

	var err error
	legs.collateralAccount, err = e.accounts.TokenAccount(ctx, owner, collateral.Mint)
	if err != nil {
		return nil, fmt.Errorf("collateral token account: %w", err)
	}
	legs.debtAccount, err = e.accounts.TokenAccount(ctx, owner, debt.Mint)
	if err != nil {
		return nil, fmt.Errorf("debt token account: %w", err)
	}
	legs.stableAccount, err = e.accounts.TokenAccount(ctx, owner, legs.stable.Mint)
	if err != nil {
		return nil, fmt.Errorf("stable token account: %w", err)
	}

	return legs, nil
}

// buildSteps assembles the ordered steps for plan: an optional debt purchase,
// the liquidation, and an optional collateral sale.
func (e *Executor) buildSteps(ctx context.Context, plan *types.ExecutionPlan, legs *tokenLegs) ([]Step, error) {
	if plan.StablePrice <= 0 {
		return nil, fmt.Errorf("stable price must be positive, got %f", plan.StablePrice)
	}

	steps := make([]Step, 0, 3)
	owner := e.signer.PublicKey()

	debtNative, err := ledger.ToNative(plan.DebtRepay, legs.debt.Decimals)
	if err != nil {
		return nil, fmt.Errorf("debt repay amount: %w", err)
	}
	collateralNative, err := ledger.ToNative(plan.MinCollateral, legs.collateral.Decimals)
	if err != nil {
		return nil, fmt.Errorf("min collateral amount: %w", err)
	}

	if legs.debt.ID != legs.stable.ID {
		venue, venueErr := e.venues.Venue(legs.debt.SwapToken)
		if venueErr != nil {
			return nil, fmt.Errorf("buy debt %s: %w", legs.debt.Symbol, venueErr)
		}

		requiredStable := plan.DebtRepay * plan.DebtPrice / plan.StablePrice
		pay, payErr := ledger.ToNative(requiredStable*(1+e.slippage), legs.stable.Decimals)
		if payErr != nil {
			return nil, fmt.Errorf("stable pay amount: %w", payErr)
		}

		ixs, buildErr := venue.BuildSwap(ctx, &swap.Request{
			SellToken:    legs.stable.SwapToken,
			SellMint:     legs.stable.Mint,
			SellAmount:   pay,
			SellAccount:  legs.stableAccount,
			BuyToken:     legs.debt.SwapToken,
			BuyMint:      legs.debt.Mint,
			MinBuyAmount: debtNative,
			BuyAccount:   legs.debtAccount,
			Beneficiary:  owner,
		})
		if buildErr != nil {
			return nil, fmt.Errorf("buy debt %s: %w", legs.debt.Symbol, buildErr)
		}
		steps = append(steps, Step{Name: "buy-debt", Instructions: ixs})
		StepsBuiltTotal.WithLabelValues("buy-debt").Inc()
	}

	borrower, err := ledger.ParseAddress(plan.Borrower)
	if err != nil {
		return nil, fmt.Errorf("borrower: %w", err)
	}
	liqIxs, err := e.builder.BuildLiquidation(ctx, &LiquidationRequest{
		Liquidator:          owner,
		Borrower:            borrower,
		CollateralAccount:   legs.collateralAccount,
		DebtAccount:         legs.debtAccount,
		CollateralMint:      legs.collateral.Mint,
		DebtMint:            legs.debt.Mint,
		MinCollateralAmount: collateralNative,
		DebtRepayAmount:     debtNative,
	})
	if err != nil {
		return nil, fmt.Errorf("build liquidation: %w", err)
	}
	steps = append(steps, Step{Name: "liquidate", Instructions: liqIxs})
	StepsBuiltTotal.WithLabelValues("liquidate").Inc()

	if legs.collateral.ID != legs.stable.ID {
		venue, venueErr := e.venues.Venue(legs.collateral.SwapToken)
		if venueErr != nil {
			return nil, fmt.Errorf("sell collateral %s: %w", legs.collateral.Symbol, venueErr)
		}

		// Small sales are left to the residual sweep.
		fair := plan.MinCollateral * plan.CollateralPrice / plan.StablePrice
		if fair > e.minSwapValue {
			minReceive, minErr := ledger.ToNative(fair*(1-e.slippage), legs.stable.Decimals)
			if minErr != nil {
				return nil, fmt.Errorf("stable receive amount: %w", minErr)
			}

			ixs, buildErr := venue.BuildSwap(ctx, &swap.Request{
				SellToken:    legs.collateral.SwapToken,
				SellMint:     legs.collateral.Mint,
				SellAmount:   collateralNative,
				SellAccount:  legs.collateralAccount,
				BuyToken:     legs.stable.SwapToken,
				BuyMint:      legs.stable.Mint,
				MinBuyAmount: minReceive,
				BuyAccount:   legs.stableAccount,
				Beneficiary:  owner,
			})
			if buildErr != nil {
				return nil, fmt.Errorf("sell collateral %s: %w", legs.collateral.Symbol, buildErr)
			}
			steps = append(steps, Step{Name: "sell-collateral", Instructions: ixs})
			StepsBuiltTotal.WithLabelValues("sell-collateral").Inc()
		}
	}

	return steps, nil
}

// batchSteps groups steps into atomic units: up to two steps share one unit,
// a third goes in its own.
func batchSteps(steps []Step) [][]Step {
	if len(steps) <= maxUnitSteps {
		return [][]Step{steps}
	}
	return [][]Step{steps[:maxUnitSteps], steps[maxUnitSteps:]}
}

func (e *Executor) submitUnit(ctx context.Context, index int, unit []Step) (ledger.Signature, error) {
	var ixs []ledger.Instruction
	names := make([]string, 0, len(unit))
	for _, s := range unit {
		ixs = append(ixs, s.Instructions...)
		names = append(names, s.Name)
	}

	sig, err := e.submitter.SubmitTransaction(ctx, e.signer, ixs)
	if err != nil {
		return "", &types.UnitError{Unit: index, Steps: names, Stage: types.UnitStageSubmit, Err: err}
	}

	err = e.submitter.ConfirmTransaction(ctx, sig)
	if err != nil {
		return sig, &types.UnitError{
			Unit:      index,
			Steps:     names,
			Stage:     types.UnitStageConfirm,
			Signature: string(sig),
			Err:       err,
		}
	}

	e.logger.Info("unit-confirmed",
		zap.Strings("steps", names),
		zap.String("signature", string(sig)))
	return sig, nil
}

// sweepResidual sells leftover debt and collateral tokens for stable with no
// minimum. Each leg fails independently.
func (e *Executor) sweepResidual(ctx context.Context, legs *tokenLegs) []ledger.Signature {
	type residual struct {
		pool    config.PoolConfig
		account ledger.Address
	}

	candidates := make([]residual, 0, 2)
	if legs.debt.ID != legs.stable.ID {
		candidates = append(candidates, residual{pool: legs.debt, account: legs.debtAccount})
	}
	if legs.collateral.ID != legs.stable.ID && legs.collateral.ID != legs.debt.ID {
		candidates = append(candidates, residual{pool: legs.collateral, account: legs.collateralAccount})
	}

	var sigs []ledger.Signature
	for _, c := range candidates {
		sig, err := e.sellResidual(ctx, c.pool, c.account, legs)
		if err != nil {
			ResidualSweepsTotal.WithLabelValues("failed").Inc()
			e.logger.Warn("residual-sweep-failed",
				zap.String("token", c.pool.Symbol),
				zap.Error(err))
			continue
		}
		if sig == "" {
			ResidualSweepsTotal.WithLabelValues("empty").Inc()
			continue
		}
		ResidualSweepsTotal.WithLabelValues("sent").Inc()
		sigs = append(sigs, sig)
	}
	return sigs
}

func (e *Executor) sellResidual(ctx context.Context, pool config.PoolConfig, account ledger.Address, legs *tokenLegs) (ledger.Signature, error) {
	balance, err := e.balances.TokenAccountBalance(ctx, account)
	if err != nil {
		return "", fmt.Errorf("read balance: %w", err)
	}
	if balance.Amount == 0 {
		return "", nil
	}

	venue, err := e.venues.Venue(pool.SwapToken)
	if err != nil {
		return "", err
	}

	e.logger.Info("residual-selling",
		zap.String("token", pool.Symbol),
		zap.Uint64("amount", balance.Amount))

	ixs, err := venue.BuildSwap(ctx, &swap.Request{
		SellToken:   pool.SwapToken,
		SellMint:    pool.Mint,
		SellAmount:  balance.Amount,
		SellAccount: account,
		BuyToken:    legs.stable.SwapToken,
		BuyMint:     legs.stable.Mint,
		BuyAccount:  legs.stableAccount,
		Beneficiary: e.signer.PublicKey(),
	})
	if err != nil {
		return "", fmt.Errorf("build residual swap: %w", err)
	}

	// Residual sales are fire-and-forget; they are not confirmed.
	sig, err := e.submitter.SubmitTransaction(ctx, e.signer, ixs)
	if err != nil {
		return "", fmt.Errorf("submit residual swap: %w", err)
	}
	return sig, nil
}
