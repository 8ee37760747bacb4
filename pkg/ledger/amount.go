package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ToNative converts a UI amount to integer base units, rounding down.
func ToNative(amount float64, decimals uint8) (uint64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative amount: %f", amount)
	}

	native := decimal.NewFromFloat(amount).Shift(int32(decimals)).Floor()
	if !native.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s overflows uint64", native.String())
	}

	return native.BigInt().Uint64(), nil
}

// FromNative converts integer base units to a UI amount.
func FromNative(native uint64, decimals uint8) float64 {
	f, _ := decimal.NewFromUint64(native).Shift(-int32(decimals)).Float64()
	return f
}
