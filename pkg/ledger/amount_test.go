package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNative(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		decimals uint8
		want     uint64
	}{
		{name: "usdc", amount: 12.5, decimals: 6, want: 12_500_000},
		{name: "sol", amount: 0.1, decimals: 9, want: 100_000_000},
		{name: "rounds-down", amount: 1.0000009, decimals: 6, want: 1_000_000},
		{name: "zero", amount: 0, decimals: 8, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToNative(tt.amount, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToNative_Errors(t *testing.T) {
	_, err := ToNative(-1, 6)
	assert.Error(t, err)

	_, err = ToNative(math.MaxFloat32, 18)
	assert.Error(t, err)
}

func TestFromNative(t *testing.T) {
	assert.InDelta(t, 12.5, FromNative(12_500_000, 6), 1e-12)
	assert.InDelta(t, 0.000001, FromNative(1, 6), 1e-15)
	assert.Equal(t, 0.0, FromNative(0, 9))
}
