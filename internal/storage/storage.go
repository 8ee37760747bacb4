package storage

import (
	"context"

	"github.com/mselser95/lending-liquidator/pkg/types"
)

// Storage defines the interface for persisting liquidation attempts.
type Storage interface {
	StoreAttempt(ctx context.Context, attempt *types.LiquidationAttempt) error
	Close() error
}
