// Package swap builds token swap instructions through per-asset venues.
package swap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
)

// ErrUnsupportedAsset is returned when no venue is registered for an asset.
var ErrUnsupportedAsset = errors.New("unsupported asset")

// Request describes one swap. Amounts are native units.
type Request struct {
	SellToken    string
	SellMint     ledger.Address
	SellAmount   uint64
	SellAccount  ledger.Address
	BuyToken     string
	BuyMint      ledger.Address
	MinBuyAmount uint64
	BuyAccount   ledger.Address
	Beneficiary  ledger.Address
}

// Venue builds the instructions for a swap.
type Venue interface {
	Name() string
	BuildSwap(ctx context.Context, req *Request) ([]ledger.Instruction, error)
}

// Registry maps swap token ids to the one venue that trades them.
type Registry struct {
	mu     sync.RWMutex
	venues map[string]Venue
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{venues: make(map[string]Venue)}
}

// Register assigns venue to token, replacing any earlier assignment.
func (r *Registry) Register(token string, venue Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[token] = venue
}

// Venue returns the venue for token.
func (r *Registry) Venue(token string) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.venues[token]
	if !ok || token == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAsset, token)
	}
	return v, nil
}

// Tokens lists registered tokens in sorted order.
func (r *Registry) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.venues))
	for token := range r.venues {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
