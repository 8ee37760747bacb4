package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/cache"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func addr(b byte) ledger.Address {
	raw := make([]byte, ledger.AddressLength)
	for i := range raw {
		raw[i] = b
	}
	a, _ := ledger.AddressFromBytes(raw)
	return a
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]any
}

func newMapCache() *mapCache { return &mapCache{m: map[string]any{}} }

func (c *mapCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(key string, value any, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return true
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *mapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = map[string]any{}
}

func (c *mapCache) Close() {}

type fakeLister struct {
	accounts map[ledger.Address][]ledger.TokenAccount
	err      error
	calls    int
}

func (l *fakeLister) TokenAccountsByOwner(_ context.Context, _, mint ledger.Address) ([]ledger.TokenAccount, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.accounts[mint], nil
}

func TestNewCachedResolver_Validation(t *testing.T) {
	_, err := NewCachedResolver(nil, newMapCache(), time.Minute, zap.NewNop())
	require.Error(t, err)
	_, err = NewCachedResolver(&fakeLister{}, nil, time.Minute, zap.NewNop())
	require.Error(t, err)
	_, err = NewCachedResolver(&fakeLister{}, newMapCache(), time.Minute, nil)
	require.Error(t, err)
}

func TestTokenAccount_PrefersLargestExisting(t *testing.T) {
	owner, mint := addr(1), addr(2)
	lister := &fakeLister{accounts: map[ledger.Address][]ledger.TokenAccount{
		mint: {
			{Address: addr(10), Mint: mint, Balance: ledger.TokenAmount{Amount: 5}},
			{Address: addr(11), Mint: mint, Balance: ledger.TokenAmount{Amount: 50}},
			{Address: addr(12), Mint: mint, Balance: ledger.TokenAmount{Amount: 50}},
		},
	}}
	r, err := NewCachedResolver(lister, newMapCache(), time.Minute, zap.NewNop())
	require.NoError(t, err)

	got, err := r.TokenAccount(context.Background(), owner, mint)
	require.NoError(t, err)
	assert.Equal(t, addr(11), got)

	again, err := r.TokenAccount(context.Background(), owner, mint)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, lister.calls)

	r.Invalidate(owner, mint)
	_, err = r.TokenAccount(context.Background(), owner, mint)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestTokenAccount_FallsBackToAssociated(t *testing.T) {
	owner, mint := addr(1), addr(3)
	r, err := NewCachedResolver(&fakeLister{}, newMapCache(), time.Minute, zap.NewNop())
	require.NoError(t, err)

	got, err := r.TokenAccount(context.Background(), owner, mint)
	require.NoError(t, err)

	want, err := ledger.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTokenAccount_ListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("rpc down")}
	c := newMapCache()
	r, err := NewCachedResolver(lister, c, time.Minute, zap.NewNop())
	require.NoError(t, err)

	_, err = r.TokenAccount(context.Background(), addr(1), addr(2))
	require.ErrorIs(t, err, lister.err)
	assert.Empty(t, c.m)
}

func TestTokenAccount_WithRistretto(t *testing.T) {
	rc, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "token-accounts-test",
		NumCounters: 100,
		MaxCost:     10,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	owner, mint := addr(1), addr(2)
	lister := &fakeLister{accounts: map[ledger.Address][]ledger.TokenAccount{
		mint: {{Address: addr(10), Mint: mint}},
	}}
	r, err := NewCachedResolver(lister, rc, time.Hour, zap.NewNop())
	require.NoError(t, err)

	got, err := r.TokenAccount(context.Background(), owner, mint)
	require.NoError(t, err)
	assert.Equal(t, addr(10), got)

	rc.Wait()
	_, err = r.TokenAccount(context.Background(), owner, mint)
	require.NoError(t, err)
	assert.Equal(t, 1, lister.calls)
}
