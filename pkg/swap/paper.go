package swap

import (
	"context"
	"fmt"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
)

// PaperVenue records swaps as memo instructions instead of trading.
type PaperVenue struct{}

// Name implements Venue.
func (PaperVenue) Name() string {
	return "paper"
}

// BuildSwap implements Venue.
func (PaperVenue) BuildSwap(_ context.Context, req *Request) ([]ledger.Instruction, error) {
	if req.SellAmount == 0 {
		return nil, fmt.Errorf("swap %s->%s: zero sell amount", req.SellToken, req.BuyToken)
	}

	memo := fmt.Sprintf("swap sell=%d %s min-buy=%d %s", req.SellAmount, req.SellToken, req.MinBuyAmount, req.BuyToken)
	return []ledger.Instruction{ledger.NewMemoInstruction(req.Beneficiary, memo)}, nil
}
