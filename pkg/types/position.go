package types

// PoolID identifies a lending pool (one asset) within the protocol.
type PoolID uint8

// PositionEntry is one pool's deposit and borrow for a borrower, in native units.
type PositionEntry struct {
	Pool    PoolID
	Deposit uint64
	Borrow  uint64
}

// PositionSnapshot is a decoded borrower record. Snapshots are immutable and
// replaced wholesale on every account update.
type PositionSnapshot struct {
	PageID  uint16
	Entries []PositionEntry
}

// Entry returns the entry for pool, if present.
func (s *PositionSnapshot) Entry(pool PoolID) (PositionEntry, bool) {
	if s == nil {
		return PositionEntry{}, false
	}
	for _, e := range s.Entries {
		if e.Pool == pool {
			return e, true
		}
	}
	return PositionEntry{}, false
}

// PriceTable maps pools to their latest USD price.
type PriceTable map[PoolID]float64

// Price returns the price of pool and whether it is known and positive.
func (p PriceTable) Price(pool PoolID) (float64, bool) {
	price, ok := p[pool]
	return price, ok && price > 0
}
