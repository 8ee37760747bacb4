package types

import "time"

// PoolExposure is one pool's USD exposure inside a BorrowerReport.
type PoolExposure struct {
	Pool       PoolID  `json:"pool"`
	Symbol     string  `json:"symbol"`
	DepositUSD float64 `json:"deposit_usd"`
	BorrowUSD  float64 `json:"borrow_usd"`
}

// BorrowerReport is a point-in-time view of one watched borrower.
type BorrowerReport struct {
	Wallet string `json:"wallet"`
	// Loaded is false until the position account has been decoded once.
	Loaded         bool           `json:"loaded"`
	BorrowLimitUSD float64        `json:"borrow_limit_usd"`
	BorrowTotalUSD float64        `json:"borrow_total_usd"`
	HealthRatio    *float64       `json:"health_ratio"`
	Unsafe         bool           `json:"unsafe"`
	InFlight       bool           `json:"in_flight"`
	LastFired      *time.Time     `json:"last_fired,omitempty"`
	Exposures      []PoolExposure `json:"exposures,omitempty"`
}
