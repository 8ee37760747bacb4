package types

import "time"

// ExecutionPlan is the outcome of evaluating one unsafe borrower.
type ExecutionPlan struct {
	Borrower       string
	CollateralPool PoolID
	DebtPool       PoolID

	// MinCollateral is the least collateral (UI units) the liquidation must return.
	MinCollateral float64
	// DebtRepay is the exact debt (UI units) paid to the protocol.
	DebtRepay float64
	// LiquidatedValue is the USD value being liquidated.
	LiquidatedValue float64

	CollateralPrice float64
	DebtPrice       float64
	StablePrice     float64
	HealthRatio     float64
}

// AttemptStatus is the terminal state of a liquidation attempt.
type AttemptStatus string

// Attempt statuses.
const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	AttemptSkipped   AttemptStatus = "skipped"
)

// LiquidationAttempt records one execution attempt against a borrower.
type LiquidationAttempt struct {
	ID         string
	Mode       string
	Plan       ExecutionPlan
	Status     AttemptStatus
	Signatures []string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the attempt ran.
func (a *LiquidationAttempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}
