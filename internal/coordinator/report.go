package coordinator

import (
	"sort"

	"github.com/mselser95/lending-liquidator/internal/planner"
	"github.com/mselser95/lending-liquidator/pkg/types"
)

// Reports values every watched borrower against the current prices, ordered
// by wallet.
func (c *Coordinator) Reports() []types.BorrowerReport {
	prices := c.PriceTable()
	borrowers := c.borrowers.Borrowers()

	out := make([]types.BorrowerReport, 0, len(borrowers))
	for _, b := range borrowers {
		out = append(out, c.report(b, prices))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}

// Report returns the report for one wallet.
func (c *Coordinator) Report(wallet string) (types.BorrowerReport, bool) {
	for _, b := range c.borrowers.Borrowers() {
		if b.Wallet().String() == wallet {
			return c.report(b, c.PriceTable()), true
		}
	}
	return types.BorrowerReport{}, false
}

func (c *Coordinator) report(b Borrower, prices types.PriceTable) types.BorrowerReport {
	snap := b.Snapshot()
	var r types.BorrowerReport
	if snap == nil {
		r.Wallet = b.Wallet().String()
	} else {
		r = planner.New(b.Wallet().String(), snap, prices, c.pools, c.maxUSD).Report()
	}

	r.InFlight = b.InFlight()
	if last := b.LastFired(); !last.IsZero() {
		r.LastFired = &last
	}
	return r
}
