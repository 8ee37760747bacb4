package mirror

import (
	"sync/atomic"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

// PriceQuote is a decoded price record.
type PriceQuote struct {
	Price     float64
	Slot      uint64
	UpdatedAt time.Time
}

// PriceMirror follows one pool's price account.
type PriceMirror struct {
	watcher
	pool  types.PoolID
	mint  ledger.Address
	quote atomic.Pointer[PriceQuote]
}

// NewPriceMirror creates an uninitialized price mirror for pool.
func NewPriceMirror(deps *Deps, pool types.PoolID, mint ledger.Address) *PriceMirror {
	m := &PriceMirror{pool: pool, mint: mint}
	m.init(deps, "price")
	m.logger = m.logger.With(zap.Uint8("pool", uint8(pool)))
	m.update = m.onUpdate
	return m
}

// Pool returns the pool this mirror prices.
func (m *PriceMirror) Pool() types.PoolID {
	return m.pool
}

// Mint returns the asset mint.
func (m *PriceMirror) Mint() ledger.Address {
	return m.mint
}

// Quote returns the latest price, or nil before the first update.
func (m *PriceMirror) Quote() *PriceQuote {
	return m.quote.Load()
}

// Price returns the latest price and whether one has been received.
func (m *PriceMirror) Price() (float64, bool) {
	q := m.quote.Load()
	if q == nil {
		return 0, false
	}
	return q.Price, true
}

func (m *PriceMirror) onUpdate(account *ledger.Account) {
	pool, price, err := m.deps.Decoder.DecodePrice(account.Data)
	if err != nil {
		DecodeErrorsTotal.WithLabelValues(m.kind).Inc()
		m.logger.Warn("price-decode-failed", zap.Error(err))
		return
	}

	if pool != m.pool {
		m.logger.Warn("price-pool-mismatch", zap.Uint8("decoded-pool", uint8(pool)))
		return
	}

	m.quote.Store(&PriceQuote{Price: price, Slot: account.Slot, UpdatedAt: time.Now()})
	m.logger.Debug("price-updated", zap.Float64("price", price), zap.Uint64("slot", account.Slot))
}
