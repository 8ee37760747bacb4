package app

import (
	"context"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/mselser95/lending-liquidator/internal/mirror"
	"github.com/mselser95/lending-liquidator/internal/planner"
	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/ledger/layout"
	"github.com/mselser95/lending-liquidator/pkg/protocol"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

// Inspection is a one-shot valuation of a single borrower.
type Inspection struct {
	Wallet        string               `json:"wallet"`
	Position      ledger.Address       `json:"position"`
	Prices        types.PriceTable     `json:"prices"`
	Report        types.BorrowerReport `json:"report"`
	Plan          *types.ExecutionPlan `json:"plan,omitempty"`
	PlanError     string               `json:"plan_error,omitempty"`
	MissingPrices []types.PoolID       `json:"missing_prices,omitempty"`
}

// Inspect fetches every price account and one borrower's position over RPC
// and writes the resulting valuation and plan to out as JSON.
func Inspect(ctx context.Context, cfg *config.Config, logger *zap.Logger, wallet string, out io.Writer) error {
	pools, err := config.LoadPools(cfg.PoolsConfigPath)
	if err != nil {
		return fmt.Errorf("load pools: %w", err)
	}

	addresses, err := setupAddressBook(cfg)
	if err != nil {
		return err
	}

	rpc, err := setupRPCClient(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup rpc client: %w", err)
	}
	defer rpc.Close()

	result, err := inspect(ctx, rpc, layout.Decoder{}, addresses, pools, wallet, cfg.MaxLiquidationUSD)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func inspect(
	ctx context.Context,
	fetcher ledger.Fetcher,
	decoder mirror.Decoder,
	addresses *protocol.AddressBook,
	pools *config.Pools,
	wallet string,
	maxUSD float64,
) (*Inspection, error) {
	owner, err := ledger.ParseAddress(wallet)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}

	result := &Inspection{Wallet: wallet, Prices: make(types.PriceTable)}

	for _, pool := range pools.All() {
		addr := pool.PriceAccount
		if addr.IsZero() {
			addr, err = addresses.PriceAddress(pool.Mint)
			if err != nil {
				return nil, fmt.Errorf("price account for pool %d: %w", pool.ID, err)
			}
		}

		account, fetchErr := fetcher.FetchAccount(ctx, addr)
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch price for pool %d: %w", pool.ID, fetchErr)
		}
		if account == nil {
			result.MissingPrices = append(result.MissingPrices, pool.ID)
			continue
		}

		id, price, decodeErr := decoder.DecodePrice(account.Data)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode price for pool %d: %w", pool.ID, decodeErr)
		}
		result.Prices[id] = price
	}

	result.Position, err = addresses.PositionAddress(owner)
	if err != nil {
		return nil, fmt.Errorf("position address: %w", err)
	}

	account, err := fetcher.FetchAccount(ctx, result.Position)
	if err != nil {
		return nil, fmt.Errorf("fetch position: %w", err)
	}
	result.Report.Wallet = wallet
	if account == nil {
		return result, nil
	}

	snap, err := decoder.DecodePosition(account.Data)
	if err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}

	p := planner.New(wallet, snap, result.Prices, pools, maxUSD)
	result.Report = p.Report()

	if result.Report.Unsafe {
		result.Plan, err = p.BuildExecutionPlan()
		if err != nil {
			result.PlanError = err.Error()
			result.Plan = nil
		}
	}

	return result, nil
}
