// Package accounts resolves the liquidator's token accounts, caching results
// so repeated liquidations do not re-query the ledger.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/cache"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"go.uber.org/zap"
)

// TokenAccountLister lists an owner's token accounts for a mint.
type TokenAccountLister interface {
	TokenAccountsByOwner(ctx context.Context, owner, mint ledger.Address) ([]ledger.TokenAccount, error)
}

// CachedResolver maps (owner, mint) to a token account. It prefers the
// owner's largest existing account and falls back to the associated token
// address when none exists yet.
type CachedResolver struct {
	lister TokenAccountLister
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedResolver creates a resolver.
func NewCachedResolver(lister TokenAccountLister, c cache.Cache, ttl time.Duration, logger *zap.Logger) (*CachedResolver, error) {
	if lister == nil {
		return nil, errors.New("lister cannot be nil")
	}
	if c == nil {
		return nil, errors.New("cache cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &CachedResolver{lister: lister, cache: c, ttl: ttl, logger: logger}, nil
}

func cacheKey(owner, mint ledger.Address) string {
	return owner.String() + ":" + mint.String()
}

// TokenAccount returns the token account owner uses for mint.
func (r *CachedResolver) TokenAccount(ctx context.Context, owner, mint ledger.Address) (ledger.Address, error) {
	key := cacheKey(owner, mint)
	if v, ok := r.cache.Get(key); ok {
		if addr, isAddr := v.(ledger.Address); isAddr {
			return addr, nil
		}
	}

	accounts, err := r.lister.TokenAccountsByOwner(ctx, owner, mint)
	if err != nil {
		return "", fmt.Errorf("list token accounts for %s: %w", mint, err)
	}

	var resolved ledger.Address
	var best uint64
	for _, acc := range accounts {
		if resolved.IsZero() || acc.Balance.Amount > best {
			resolved = acc.Address
			best = acc.Balance.Amount
		}
	}

	source := "existing"
	if resolved.IsZero() {
		source = "associated"
		resolved, err = ledger.FindAssociatedTokenAddress(owner, mint)
		if err != nil {
			return "", fmt.Errorf("derive associated account for %s: %w", mint, err)
		}
	}

	r.cache.Set(key, resolved, r.ttl)
	r.logger.Debug("token-account-resolved",
		zap.String("mint", mint.String()),
		zap.String("account", resolved.String()),
		zap.String("source", source))

	return resolved, nil
}

// Invalidate drops the cached account for (owner, mint).
func (r *CachedResolver) Invalidate(owner, mint ledger.Address) {
	r.cache.Delete(cacheKey(owner, mint))
}
