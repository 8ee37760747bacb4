package mirror

import (
	"sync/atomic"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

// BorrowerMirror follows one borrower's position record. It also carries the
// borrower's cool-down state, which only the execution coordinator mutates.
type BorrowerMirror struct {
	watcher
	wallet   ledger.Address
	snapshot atomic.Pointer[types.PositionSnapshot]

	lastFired atomic.Int64
	inFlight  atomic.Bool
}

// NewBorrowerMirror creates an uninitialized mirror for wallet.
func NewBorrowerMirror(deps *Deps, wallet ledger.Address) *BorrowerMirror {
	m := &BorrowerMirror{wallet: wallet}
	m.init(deps, "borrower")
	m.logger = m.logger.With(zap.String("wallet", wallet.String()))
	m.update = m.onUpdate
	return m
}

// Wallet returns the borrower's wallet address.
func (m *BorrowerMirror) Wallet() ledger.Address {
	return m.wallet
}

// Snapshot returns the latest decoded position, or nil before the first update.
func (m *BorrowerMirror) Snapshot() *types.PositionSnapshot {
	return m.snapshot.Load()
}

// LastFired returns when the last liquidation attempt finished. Zero if never.
func (m *BorrowerMirror) LastFired() time.Time {
	ns := m.lastFired.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// MarkFired stamps the cool-down clock.
func (m *BorrowerMirror) MarkFired(at time.Time) {
	m.lastFired.Store(at.UnixNano())
}

// TryBeginAttempt claims the borrower for one attempt. It returns false if an
// attempt is already running.
func (m *BorrowerMirror) TryBeginAttempt() bool {
	return m.inFlight.CompareAndSwap(false, true)
}

// EndAttempt releases the claim taken by TryBeginAttempt.
func (m *BorrowerMirror) EndAttempt() {
	m.inFlight.Store(false)
}

// InFlight reports whether an attempt is running.
func (m *BorrowerMirror) InFlight() bool {
	return m.inFlight.Load()
}

func (m *BorrowerMirror) onUpdate(account *ledger.Account) {
	snap, err := m.deps.Decoder.DecodePosition(account.Data)
	if err != nil {
		DecodeErrorsTotal.WithLabelValues(m.kind).Inc()
		m.logger.Warn("position-decode-failed", zap.Error(err))
		return
	}

	m.snapshot.Store(snap)
	m.logger.Debug("position-updated",
		zap.Uint16("page", snap.PageID),
		zap.Int("entries", len(snap.Entries)),
		zap.Uint64("slot", account.Slot))
}
