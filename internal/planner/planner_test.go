package planner

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	poolUSDC types.PoolID = 0
	poolSOL  types.PoolID = 1
	poolBTC  types.PoolID = 2
	poolETH  types.PoolID = 3
)

func mint(b byte) ledger.Address {
	raw := make([]byte, ledger.AddressLength)
	for i := range raw {
		raw[i] = b
	}
	addr, err := ledger.AddressFromBytes(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

func testPools(t *testing.T) *config.Pools {
	t.Helper()
	pools, err := config.NewPools([]config.PoolConfig{
		{ID: poolUSDC, Symbol: "USDC", Mint: mint(1), LTV: 0.8, Decimals: 6, LiquidationDiscount: 0.05, Stable: true},
		{ID: poolSOL, Symbol: "SOL", Mint: mint(2), LTV: 0.8, Decimals: 9, LiquidationDiscount: 0.05, SwapToken: "SOL"},
		{ID: poolBTC, Symbol: "BTC", Mint: mint(3), LTV: 0.7, Decimals: 6, LiquidationDiscount: 0.1, SwapToken: "BTC"},
		{ID: poolETH, Symbol: "ETH", Mint: mint(4), LTV: 0.75, Decimals: 6, LiquidationDiscount: 0.08, SwapToken: "ETH"},
	})
	require.NoError(t, err)
	return pools
}

func testPrices() types.PriceTable {
	return types.PriceTable{poolUSDC: 1, poolSOL: 100, poolBTC: 50000, poolETH: 2000}
}

func snapshot(entries ...types.PositionEntry) *types.PositionSnapshot {
	return &types.PositionSnapshot{PageID: 0, Entries: entries}
}

// thousandAgainstNineHundred is 1000 USD of SOL collateral against 900 USD of USDC debt.
func thousandAgainstNineHundred() *types.PositionSnapshot {
	return snapshot(
		types.PositionEntry{Pool: poolSOL, Deposit: 10_000_000_000},
		types.PositionEntry{Pool: poolUSDC, Borrow: 900_000_000},
	)
}

func TestBorrowLimitAndTotals(t *testing.T) {
	pools := testPools(t)
	p := New("w", thousandAgainstNineHundred(), testPrices(), pools, 1000)

	limit, total := p.BorrowLimitAndTotals()
	assert.InDelta(t, 800, limit, 1e-9)
	assert.InDelta(t, 900, total, 1e-9)
}

func TestBorrowLimitAndTotals_AdditiveAndOrderIndependent(t *testing.T) {
	pools := testPools(t)
	prices := testPrices()
	entries := []types.PositionEntry{
		{Pool: poolUSDC, Deposit: 250_000_000, Borrow: 10_000_000},
		{Pool: poolSOL, Deposit: 3_500_000_000, Borrow: 1_000_000_000},
		{Pool: poolBTC, Deposit: 20_000, Borrow: 0},
		{Pool: poolETH, Deposit: 0, Borrow: 400_000},
	}

	full := New("w", snapshot(entries...), prices, pools, 0)
	limit, total := full.BorrowLimitAndTotals()

	var sumLimit, sumTotal float64
	for _, e := range entries {
		l, b := New("w", snapshot(e), prices, pools, 0).BorrowLimitAndTotals()
		sumLimit += l
		sumTotal += b
	}
	assert.InDelta(t, sumLimit, limit, 1e-9)
	assert.InDelta(t, sumTotal, total, 1e-9)

	reversed := make([]types.PositionEntry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	rl, rt := New("w", snapshot(reversed...), prices, pools, 0).BorrowLimitAndTotals()
	assert.Equal(t, limit, rl)
	assert.Equal(t, total, rt)
}

func TestNew_IgnoresUnknownPoolsAndMissingPrices(t *testing.T) {
	pools := testPools(t)
	prices := types.PriceTable{poolUSDC: 1, poolSOL: 100, 9: 5}

	p := New("w", snapshot(
		types.PositionEntry{Pool: 9, Deposit: 1_000_000, Borrow: 1_000_000},
		types.PositionEntry{Pool: poolBTC, Deposit: 1_000_000},
		types.PositionEntry{Pool: poolSOL, Deposit: 1_000_000_000},
	), prices, pools, 0)

	limit, total := p.BorrowLimitAndTotals()
	assert.InDelta(t, 80, limit, 1e-9)
	assert.Zero(t, total)
	assert.Len(t, p.Valuations(), 4)
}

func TestHealthRatio(t *testing.T) {
	pools := testPools(t)

	tests := []struct {
		name      string
		snap      *types.PositionSnapshot
		wantOK    bool
		wantRatio float64
		liquidate bool
	}{
		{
			name:      "under-collateralized",
			snap:      thousandAgainstNineHundred(),
			wantOK:    true,
			wantRatio: 1.125,
			liquidate: true,
		},
		{
			name: "exactly-at-limit",
			snap: snapshot(
				types.PositionEntry{Pool: poolSOL, Deposit: 10_000_000_000},
				types.PositionEntry{Pool: poolUSDC, Borrow: 800_000_000},
			),
			wantOK:    true,
			wantRatio: 1,
			liquidate: false,
		},
		{
			name: "healthy",
			snap: snapshot(
				types.PositionEntry{Pool: poolSOL, Deposit: 10_000_000_000},
				types.PositionEntry{Pool: poolUSDC, Borrow: 400_000_000},
			),
			wantOK:    true,
			wantRatio: 0.5,
		},
		{
			name: "no-debt",
			snap: snapshot(types.PositionEntry{Pool: poolSOL, Deposit: 10_000_000_000}),
		},
		{
			name: "no-collateral",
			snap: snapshot(types.PositionEntry{Pool: poolUSDC, Borrow: 10_000_000}),
		},
		{
			name: "empty-snapshot",
			snap: snapshot(),
		},
		{
			name: "nil-snapshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("w", tt.snap, testPrices(), pools, 1000)

			ratio, ok := p.HealthRatio()
			if ok != tt.wantOK {
				t.Fatalf("HealthRatio ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(ratio-tt.wantRatio) > 1e-9 {
				t.Errorf("HealthRatio = %f, want %f", ratio, tt.wantRatio)
			}
			if got := p.ShouldLiquidate(); got != tt.liquidate {
				t.Errorf("ShouldLiquidate = %v, want %v", got, tt.liquidate)
			}

			if !tt.liquidate {
				_, err := p.BuildExecutionPlan()
				if !errors.Is(err, ErrNotLiquidatable) {
					t.Errorf("expected ErrNotLiquidatable, got %v", err)
				}
			}
		})
	}
}

func TestBuildExecutionPlan_RoundTrip(t *testing.T) {
	pools := testPools(t)
	p := New("borrower-1", thousandAgainstNineHundred(), testPrices(), pools, 1000)

	plan, err := p.BuildExecutionPlan()
	require.NoError(t, err)

	wantX := (900 - 800*PostFactor) / (1 - PostFactor*0.8)
	assert.Equal(t, "borrower-1", plan.Borrower)
	assert.Equal(t, poolSOL, plan.CollateralPool)
	assert.Equal(t, poolUSDC, plan.DebtPool)
	assert.InDelta(t, 1.125, plan.HealthRatio, 1e-9)
	assert.Greater(t, plan.LiquidatedValue, 0.0)
	assert.LessOrEqual(t, plan.LiquidatedValue, 900.0)
	assert.InDelta(t, wantX, plan.LiquidatedValue, 1e-9)
	assert.InDelta(t, wantX/100*CollateralHaircut, plan.MinCollateral, 1e-9)
	assert.InDelta(t, wantX/1/1.05, plan.DebtRepay, 1e-9)
	assert.InDelta(t, 100, plan.CollateralPrice, 1e-12)
	assert.InDelta(t, 1, plan.DebtPrice, 1e-12)
	assert.InDelta(t, 1, plan.StablePrice, 1e-12)
}

func TestSizeLiquidation_Cap(t *testing.T) {
	pools := testPools(t)
	p := New("w", thousandAgainstNineHundred(), testPrices(), pools, 100)

	coll, debt, err := p.SelectTargets()
	require.NoError(t, err)

	sizing, err := p.SizeLiquidation(coll, debt)
	require.NoError(t, err)
	assert.InDelta(t, 100, sizing.Liquidated, 1e-12)
	assert.Greater(t, sizing.Reduction, sizing.Liquidated)
	assert.InDelta(t, 100.0/100*CollateralHaircut, sizing.MinCollateral, 1e-12)
}

func TestSizeLiquidation_NeverExceedsAvailable(t *testing.T) {
	pools := testPools(t)
	prices := testPrices()
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		maxUSD := rng.Float64() * 5000
		snap := snapshot(
			types.PositionEntry{Pool: poolSOL, Deposit: rng.Uint64N(50_000_000_000), Borrow: rng.Uint64N(5_000_000_000)},
			types.PositionEntry{Pool: poolUSDC, Deposit: rng.Uint64N(2_000_000_000), Borrow: rng.Uint64N(4_000_000_000)},
			types.PositionEntry{Pool: poolBTC, Deposit: rng.Uint64N(100_000), Borrow: rng.Uint64N(50_000)},
		)
		p := New("w", snap, prices, pools, maxUSD)

		coll, debt, err := p.SelectTargets()
		if err != nil {
			continue
		}
		sizing, err := p.SizeLiquidation(coll, debt)
		require.NoError(t, err)

		bound := math.Min(math.Min(coll.Value, debt.Value), maxUSD)
		if sizing.Liquidated > bound+1e-9 {
			t.Fatalf("iteration %d: liquidated %f exceeds bound %f", i, sizing.Liquidated, bound)
		}
		if sizing.Liquidated < 0 {
			t.Fatalf("iteration %d: negative liquidated value %f", i, sizing.Liquidated)
		}
	}
}

func TestSelectTargets(t *testing.T) {
	pools := testPools(t)

	tests := []struct {
		name     string
		snap     *types.PositionSnapshot
		wantColl types.PoolID
		wantDebt types.PoolID
		wantErr  error
	}{
		{
			name: "highest-value-wins",
			snap: snapshot(
				types.PositionEntry{Pool: poolSOL, Deposit: 1_000_000_000},
				types.PositionEntry{Pool: poolBTC, Deposit: 100_000},
				types.PositionEntry{Pool: poolUSDC, Borrow: 100_000_000},
				types.PositionEntry{Pool: poolETH, Borrow: 100_000},
			),
			wantColl: poolBTC,
			wantDebt: poolETH,
		},
		{
			name: "tie-resolves-to-lowest-pool",
			snap: snapshot(
				types.PositionEntry{Pool: poolBTC, Deposit: 10_000},
				types.PositionEntry{Pool: poolSOL, Deposit: 5_000_000_000},
				types.PositionEntry{Pool: poolETH, Borrow: 50_000},
				types.PositionEntry{Pool: poolUSDC, Borrow: 100_000_000},
			),
			wantColl: poolSOL,
			wantDebt: poolUSDC,
		},
		{
			name:    "no-debt",
			snap:    snapshot(types.PositionEntry{Pool: poolSOL, Deposit: 1_000_000_000}),
			wantErr: ErrNoTargets,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("w", tt.snap, testPrices(), pools, 0)
			coll, debt, err := p.SelectTargets()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantColl, coll.Pool)
			assert.Equal(t, tt.wantDebt, debt.Pool)
		})
	}
}

func TestBuildExecutionPlan_MissingStablePrice(t *testing.T) {
	pools := testPools(t)
	prices := types.PriceTable{poolSOL: 100, poolBTC: 50000}

	p := New("w", snapshot(
		types.PositionEntry{Pool: poolBTC, Deposit: 20_000},
		types.PositionEntry{Pool: poolSOL, Borrow: 9_000_000_000},
	), prices, pools, 1000)

	require.True(t, p.ShouldLiquidate())
	_, err := p.BuildExecutionPlan()
	if !errors.Is(err, ErrMissingStablePrice) {
		t.Errorf("expected ErrMissingStablePrice, got %v", err)
	}
}
