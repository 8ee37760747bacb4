package planner

import "github.com/mselser95/lending-liquidator/pkg/types"

// Report summarizes the position for display. Pools with neither deposits nor
// borrows are left out of the exposures.
func (p *Planner) Report() types.BorrowerReport {
	r := types.BorrowerReport{
		Wallet: p.Borrower(),
		Loaded: true,
	}
	r.BorrowLimitUSD, r.BorrowTotalUSD = p.BorrowLimitAndTotals()
	if ratio, ok := p.HealthRatio(); ok {
		r.HealthRatio = &ratio
	}
	r.Unsafe = p.ShouldLiquidate()

	for _, v := range p.Valuations() {
		if v.DepositUSD == 0 && v.BorrowUSD == 0 {
			continue
		}
		r.Exposures = append(r.Exposures, types.PoolExposure{
			Pool:       v.Pool,
			Symbol:     v.Symbol,
			DepositUSD: v.DepositUSD,
			BorrowUSD:  v.BorrowUSD,
		})
	}
	return r
}
