package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

const divider = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to console.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	return NewConsoleStorageWithWriter(os.Stdout, logger)
}

// NewConsoleStorageWithWriter creates a console storage writing to out.
func NewConsoleStorageWithWriter(out io.Writer, logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		out:    out,
		logger: logger,
	}
}

// StoreAttempt pretty-prints a liquidation attempt.
func (c *ConsoleStorage) StoreAttempt(ctx context.Context, attempt *types.LiquidationAttempt) error {
	plan := attempt.Plan

	var b strings.Builder
	fmt.Fprintln(&b, "\n"+divider)
	fmt.Fprintf(&b, "⚡ LIQUIDATION %s\n", strings.ToUpper(string(attempt.Status)))
	fmt.Fprintln(&b, divider)
	fmt.Fprintf(&b, "ID:        %s\n", shortID(attempt.ID))
	fmt.Fprintf(&b, "Mode:      %s\n", attempt.Mode)
	fmt.Fprintf(&b, "Borrower:  %s\n", plan.Borrower)
	fmt.Fprintf(&b, "Time:      %s (%s)\n", attempt.StartedAt.Format("2006-01-02 15:04:05"), attempt.Duration())
	fmt.Fprintln(&b, divider)
	fmt.Fprintf(&b, "📊 PLAN\n")
	fmt.Fprintf(&b, "  Health:      %.4f\n", plan.HealthRatio)
	fmt.Fprintf(&b, "  Repay:       %.6f (pool %d @ $%.4f)\n", plan.DebtRepay, plan.DebtPool, plan.DebtPrice)
	fmt.Fprintf(&b, "  Receive >=   %.6f (pool %d @ $%.4f)\n", plan.MinCollateral, plan.CollateralPool, plan.CollateralPrice)
	fmt.Fprintf(&b, "  Value:       $%.2f\n", plan.LiquidatedValue)
	if len(attempt.Signatures) > 0 {
		fmt.Fprintln(&b, divider)
		fmt.Fprintf(&b, "🧾 SIGNATURES\n")
		for _, sig := range attempt.Signatures {
			fmt.Fprintf(&b, "  %s\n", sig)
		}
	}
	if attempt.Error != "" {
		fmt.Fprintf(&b, "  ❌ %s\n", attempt.Error)
	}
	fmt.Fprintln(&b, divider)

	_, err := io.WriteString(c.out, b.String())
	if err != nil {
		return fmt.Errorf("write attempt: %w", err)
	}
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
