package testutil

import (
	"testing"

	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
)

// Pool ids used by the shared fixtures.
const (
	PoolUSDC types.PoolID = 0
	PoolSOL  types.PoolID = 1
)

// Address returns a deterministic address whose 32 bytes all equal b.
func Address(b byte) ledger.Address {
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

// PoolList is a stable USDC pool and a SOL pool with explicit price accounts.
func PoolList() []config.PoolConfig {
	return []config.PoolConfig{
		{
			ID: PoolUSDC, Symbol: "USDC", Mint: Address(1), LTV: 0.8, Decimals: 6,
			LiquidationDiscount: 0.05, SwapToken: "USDC", PriceAccount: Address(201), Stable: true,
		},
		{
			ID: PoolSOL, Symbol: "SOL", Mint: Address(2), LTV: 0.8, Decimals: 9,
			LiquidationDiscount: 0.05, SwapToken: "SOL", PriceAccount: Address(202),
		},
	}
}

// Pools validates PoolList.
func Pools(t *testing.T) *config.Pools {
	t.Helper()
	pools, err := config.NewPools(PoolList())
	if err != nil {
		t.Fatalf("failed to build pools: %v", err)
	}
	return pools
}

// UnsafePosition is 1000 USD of SOL (at 100 USD) against 900 USD of USDC
// debt, a health ratio of 1.125.
func UnsafePosition(page uint16) *types.PositionSnapshot {
	return &types.PositionSnapshot{
		PageID: page,
		Entries: []types.PositionEntry{
			{Pool: PoolSOL, Deposit: 10_000_000_000},
			{Pool: PoolUSDC, Borrow: 900_000_000},
		},
	}
}

// HealthyPosition is 1000 USD of SOL against 500 USD of USDC debt.
func HealthyPosition(page uint16) *types.PositionSnapshot {
	return &types.PositionSnapshot{
		PageID: page,
		Entries: []types.PositionEntry{
			{Pool: PoolSOL, Deposit: 10_000_000_000},
			{Pool: PoolUSDC, Borrow: 500_000_000},
		},
	}
}
