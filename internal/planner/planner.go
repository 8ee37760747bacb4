// Package planner evaluates one borrower against the current price table and
// sizes a liquidation when the position is under-collateralized.
//
// A Planner is built fresh for every borrower on every evaluation tick and is
// never mutated afterwards.
package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/types"
)

const (
	// PostFactor is the health ratio a liquidation aims to leave behind.
	PostFactor = 0.9
	// CollateralHaircut shaves the minimum collateral received to absorb price drift
	// between quote and execution.
	CollateralHaircut = 0.999
)

var (
	// ErrNotLiquidatable is returned when the position is healthy or has no ratio.
	ErrNotLiquidatable = errors.New("position is not liquidatable")
	// ErrNoTargets is returned when no priced collateral or debt pool has value.
	ErrNoTargets = errors.New("no liquidation targets")
	// ErrMissingStablePrice is returned when the stable pool has no price.
	ErrMissingStablePrice = errors.New("stable pool has no price")
)

// PoolSet is the read-only pool configuration consumed by the planner.
type PoolSet interface {
	All() []config.PoolConfig
	Get(id types.PoolID) (config.PoolConfig, bool)
	Stable() config.PoolConfig
}

// Valuation is one pool's USD exposure for a borrower.
type Valuation struct {
	Pool       types.PoolID
	Symbol     string
	DepositUSD float64
	BorrowUSD  float64
}

// Target is a pool chosen for liquidation along with its USD value.
type Target struct {
	Pool  types.PoolID
	Value float64
}

// Sizing is the result of SizeLiquidation.
type Sizing struct {
	// Reduction is the USD value the formula would remove to reach PostFactor.
	Reduction float64
	// Liquidated is Reduction clamped to available value and the USD cap.
	Liquidated float64
	// MinCollateral is in collateral UI units.
	MinCollateral float64
	// DebtRepay is in debt UI units.
	DebtRepay float64
}

// Planner holds one borrower's valuations.
type Planner struct {
	borrower string
	pools    PoolSet
	prices   types.PriceTable
	maxUSD   float64

	deposits map[types.PoolID]float64
	borrows  map[types.PoolID]float64
}

// New values snap against prices for every configured pool. Entries for
// unknown pools and pools without a price count as zero. maxUSD <= 0 disables
// the liquidation size cap.
func New(borrower string, snap *types.PositionSnapshot, prices types.PriceTable, pools PoolSet, maxUSD float64) *Planner {
	p := &Planner{
		borrower: borrower,
		pools:    pools,
		prices:   prices,
		maxUSD:   maxUSD,
		deposits: make(map[types.PoolID]float64),
		borrows:  make(map[types.PoolID]float64),
	}

	for _, pool := range pools.All() {
		p.deposits[pool.ID] = 0
		p.borrows[pool.ID] = 0
	}

	if snap == nil {
		return p
	}

	for _, entry := range snap.Entries {
		pool, ok := pools.Get(entry.Pool)
		if !ok {
			continue
		}
		price, ok := prices.Price(entry.Pool)
		if !ok {
			continue
		}
		scale := pool.Scale()
		p.deposits[entry.Pool] = price * float64(entry.Deposit) / scale
		p.borrows[entry.Pool] = price * float64(entry.Borrow) / scale
	}

	return p
}

// Borrower returns the wallet this planner evaluates.
func (p *Planner) Borrower() string {
	return p.borrower
}

// Valuations returns per-pool exposure ordered by pool id.
func (p *Planner) Valuations() []Valuation {
	out := make([]Valuation, 0, len(p.pools.All()))
	for _, pool := range p.pools.All() {
		out = append(out, Valuation{
			Pool:       pool.ID,
			Symbol:     pool.Symbol,
			DepositUSD: p.deposits[pool.ID],
			BorrowUSD:  p.borrows[pool.ID],
		})
	}
	return out
}

// BorrowLimitAndTotals returns the LTV-weighted deposit value and the total
// borrowed value, both in USD.
func (p *Planner) BorrowLimitAndTotals() (limit, total float64) {
	for _, pool := range p.pools.All() {
		limit += p.deposits[pool.ID] * pool.LTV
		total += p.borrows[pool.ID]
	}
	return limit, total
}

// HealthRatio returns borrowed/limit. The ratio is undefined, and ok is false,
// when either side is zero.
func (p *Planner) HealthRatio() (ratio float64, ok bool) {
	limit, total := p.BorrowLimitAndTotals()
	if total == 0 || limit == 0 {
		return 0, false
	}
	return total / limit, true
}

// ShouldLiquidate reports whether the health ratio is defined and above 1.
func (p *Planner) ShouldLiquidate() bool {
	ratio, ok := p.HealthRatio()
	return ok && ratio > 1
}

// SelectTargets picks the highest-value collateral pool and the highest-value
// debt pool. Equal values resolve to the lowest pool id.
func (p *Planner) SelectTargets() (collateral, debt Target, err error) {
	for _, pool := range p.pools.All() {
		if v := p.deposits[pool.ID]; v > collateral.Value {
			collateral = Target{Pool: pool.ID, Value: v}
		}
		if v := p.borrows[pool.ID]; v > debt.Value {
			debt = Target{Pool: pool.ID, Value: v}
		}
	}

	if collateral.Value <= 0 || debt.Value <= 0 {
		return Target{}, Target{}, ErrNoTargets
	}
	return collateral, debt, nil
}

// SizeLiquidation computes how much value to remove so that the health ratio
// falls to PostFactor. Removing X USD shrinks the debt side by X and the limit
// side by X·ltv of the collateral pool:
//
//	(total − X) / (limit − X·ltv) = P  ⇒  X = (total − limit·P) / (1 − P·ltv)
func (p *Planner) SizeLiquidation(collateral, debt Target) (Sizing, error) {
	collPool, ok := p.pools.Get(collateral.Pool)
	if !ok {
		return Sizing{}, fmt.Errorf("collateral pool %d: %w", collateral.Pool, ErrNoTargets)
	}
	if _, ok = p.pools.Get(debt.Pool); !ok {
		return Sizing{}, fmt.Errorf("debt pool %d: %w", debt.Pool, ErrNoTargets)
	}

	collPrice, ok := p.prices.Price(collateral.Pool)
	if !ok {
		return Sizing{}, fmt.Errorf("collateral pool %d has no price: %w", collateral.Pool, ErrNoTargets)
	}
	debtPrice, ok := p.prices.Price(debt.Pool)
	if !ok {
		return Sizing{}, fmt.Errorf("debt pool %d has no price: %w", debt.Pool, ErrNoTargets)
	}

	limit, total := p.BorrowLimitAndTotals()
	reduction := (total - limit*PostFactor) / (1 - PostFactor*collPool.LTV)

	liquidated := math.Min(math.Min(collateral.Value, debt.Value), reduction)
	if p.maxUSD > 0 {
		liquidated = math.Min(liquidated, p.maxUSD)
	}
	liquidated = math.Max(liquidated, 0)

	return Sizing{
		Reduction:     reduction,
		Liquidated:    liquidated,
		MinCollateral: liquidated / collPrice * CollateralHaircut,
		DebtRepay:     liquidated / debtPrice / (1 + collPool.LiquidationDiscount),
	}, nil
}

// BuildExecutionPlan selects targets and sizes the liquidation.
func (p *Planner) BuildExecutionPlan() (*types.ExecutionPlan, error) {
	ratio, ok := p.HealthRatio()
	if !ok || ratio <= 1 {
		return nil, ErrNotLiquidatable
	}

	collateral, debt, err := p.SelectTargets()
	if err != nil {
		return nil, err
	}

	sizing, err := p.SizeLiquidation(collateral, debt)
	if err != nil {
		return nil, err
	}

	stablePrice, ok := p.prices.Price(p.pools.Stable().ID)
	if !ok {
		return nil, ErrMissingStablePrice
	}

	return &types.ExecutionPlan{
		Borrower:        p.borrower,
		CollateralPool:  collateral.Pool,
		DebtPool:        debt.Pool,
		MinCollateral:   sizing.MinCollateral,
		DebtRepay:       sizing.DebtRepay,
		LiquidatedValue: sizing.Liquidated,
		CollateralPrice: p.prices[collateral.Pool],
		DebtPrice:       p.prices[debt.Pool],
		StablePrice:     stablePrice,
		HealthRatio:     ratio,
	}, nil
}
