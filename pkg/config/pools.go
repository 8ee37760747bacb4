package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
)

// PoolConfig describes one lending pool.
type PoolConfig struct {
	ID                  types.PoolID   `json:"id"`
	Symbol              string         `json:"symbol"`
	Mint                ledger.Address `json:"mint"`
	LTV                 float64        `json:"ltv"`
	Decimals            uint8          `json:"decimals"`
	LiquidationDiscount float64        `json:"liquidation_discount"`
	SwapToken           string         `json:"swap_token"`
	PriceAccount        ledger.Address `json:"price_account,omitempty"`
	Stable              bool           `json:"stable,omitempty"`
}

// Scale is the native-to-UI scaling factor, 10^decimals.
func (p PoolConfig) Scale() float64 {
	return math.Pow10(int(p.Decimals))
}

// Pools is the validated, read-only set of configured pools.
type Pools struct {
	byID    map[types.PoolID]PoolConfig
	ordered []PoolConfig
	stable  types.PoolID
}

// LoadPools reads and validates a JSON pool list from path.
func LoadPools(path string) (*Pools, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}

	var list []PoolConfig
	err = json.Unmarshal(raw, &list)
	if err != nil {
		return nil, fmt.Errorf("decode pools file: %w", err)
	}

	return NewPools(list)
}

// NewPools validates list and indexes it by pool id.
func NewPools(list []PoolConfig) (*Pools, error) {
	if len(list) == 0 {
		return nil, errors.New("at least one pool is required")
	}

	p := &Pools{byID: make(map[types.PoolID]PoolConfig, len(list))}
	mints := make(map[ledger.Address]types.PoolID, len(list))
	stableCount := 0

	for _, pool := range list {
		if _, dup := p.byID[pool.ID]; dup {
			return nil, fmt.Errorf("duplicate pool id %d", pool.ID)
		}
		if err := pool.Mint.Validate(); err != nil {
			return nil, fmt.Errorf("pool %d mint: %w", pool.ID, err)
		}
		if other, dup := mints[pool.Mint]; dup {
			return nil, fmt.Errorf("pools %d and %d share mint %s", other, pool.ID, pool.Mint)
		}
		if !pool.PriceAccount.IsZero() {
			if err := pool.PriceAccount.Validate(); err != nil {
				return nil, fmt.Errorf("pool %d price account: %w", pool.ID, err)
			}
		}
		if pool.LTV < 0 || pool.LTV >= 1 {
			return nil, fmt.Errorf("pool %d ltv must be in [0, 1), got %f", pool.ID, pool.LTV)
		}
		if pool.Decimals > 18 {
			return nil, fmt.Errorf("pool %d decimals must be <= 18, got %d", pool.ID, pool.Decimals)
		}
		if pool.LiquidationDiscount < 0 {
			return nil, fmt.Errorf("pool %d liquidation discount cannot be negative", pool.ID)
		}
		if pool.Stable {
			stableCount++
			p.stable = pool.ID
		}

		mints[pool.Mint] = pool.ID
		p.byID[pool.ID] = pool
		p.ordered = append(p.ordered, pool)
	}

	if stableCount != 1 {
		return nil, fmt.Errorf("exactly one stable pool is required, got %d", stableCount)
	}

	sort.Slice(p.ordered, func(i, j int) bool { return p.ordered[i].ID < p.ordered[j].ID })
	return p, nil
}

// Get returns the pool with id.
func (p *Pools) Get(id types.PoolID) (PoolConfig, bool) {
	pool, ok := p.byID[id]
	return pool, ok
}

// All returns every pool ordered by id. Callers must not modify the result.
func (p *Pools) All() []PoolConfig {
	return p.ordered
}

// Stable returns the stable-asset pool.
func (p *Pools) Stable() PoolConfig {
	return p.byID[p.stable]
}

// ByMint finds the pool holding mint.
func (p *Pools) ByMint(mint ledger.Address) (PoolConfig, bool) {
	for _, pool := range p.ordered {
		if pool.Mint == mint {
			return pool, true
		}
	}
	return PoolConfig{}, false
}
