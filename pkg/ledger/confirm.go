package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrConfirmTimeout is returned when a signature is not confirmed in time.
var ErrConfirmTimeout = errors.New("confirmation timeout")

// TransactionError reports a transaction that landed but failed on-chain.
type TransactionError struct {
	Signature Signature
	Detail    any
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Detail)
}

// ConfirmTransaction polls the signature status with exponential backoff until it
// reaches the configured commitment, fails, or the timeout elapses.
func (c *RPCClient) ConfirmTransaction(ctx context.Context, sig Signature) error {
	start := time.Now()
	timeout := time.NewTimer(c.confirm.Timeout)
	defer timeout.Stop()

	backoff := c.confirm.InitialBackoff
	attempt := 1

	for {
		status, err := c.SignatureStatus(ctx, sig)
		switch {
		case err != nil:
			c.logger.Warn("signature-status-failed-retrying",
				zap.String("signature", string(sig)),
				zap.Int("attempt", attempt),
				zap.Error(err))
		case status != nil && status.Err != nil:
			return &TransactionError{Signature: sig, Detail: status.Err}
		case status != nil && reached(Commitment(status.ConfirmationStatus), c.commitment):
			ConfirmDurationSeconds.Observe(time.Since(start).Seconds())
			c.logger.Debug("transaction-confirmed",
				zap.String("signature", string(sig)),
				zap.String("status", status.ConfirmationStatus),
				zap.Int("attempts", attempt))
			return nil
		}

		select {
		case <-timeout.C:
			return fmt.Errorf("%w: %s after %s", ErrConfirmTimeout, sig, c.confirm.Timeout)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		attempt++
		backoff = time.Duration(float64(backoff) * c.confirm.BackoffMult)
		if backoff > c.confirm.MaxBackoff {
			backoff = c.confirm.MaxBackoff
		}
	}
}

func reached(got, want Commitment) bool {
	rank := map[Commitment]int{
		CommitmentProcessed: 1,
		CommitmentConfirmed: 2,
		CommitmentFinalized: 3,
	}
	return rank[got] >= rank[want] && rank[got] > 0
}
