package execution

import (
	"context"
	"fmt"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
)

// LiquidationRequest holds everything needed to build the liquidation instruction.
// Amounts are native units.
type LiquidationRequest struct {
	Liquidator        ledger.Address
	Borrower          ledger.Address
	CollateralAccount ledger.Address
	DebtAccount       ledger.Address
	CollateralMint    ledger.Address
	DebtMint          ledger.Address

	// MinCollateralAmount is the least collateral the liquidator accepts.
	MinCollateralAmount uint64
	// DebtRepayAmount is paid exactly.
	DebtRepayAmount uint64
}

// LiquidationBuilder produces the lending program's liquidation instruction.
type LiquidationBuilder interface {
	BuildLiquidation(ctx context.Context, req *LiquidationRequest) ([]ledger.Instruction, error)
}

// PaperBuilder emits a memo describing the liquidation.
type PaperBuilder struct{}

// BuildLiquidation implements LiquidationBuilder.
func (PaperBuilder) BuildLiquidation(_ context.Context, req *LiquidationRequest) ([]ledger.Instruction, error) {
	if req.Borrower.IsZero() {
		return nil, fmt.Errorf("liquidation: borrower: %w", ledger.ErrInvalidAddress)
	}

	memo := fmt.Sprintf("liquidate borrower=%s receive>=%d %s pay=%d %s",
		req.Borrower, req.MinCollateralAmount, req.CollateralMint, req.DebtRepayAmount, req.DebtMint)
	return []ledger.Instruction{ledger.NewMemoInstruction(req.Liquidator, memo)}, nil
}
