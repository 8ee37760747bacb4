package mirror

import (
	"context"
	"sort"
	"sync"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"go.uber.org/zap"
)

// PageMirror follows one fixed-size listing of borrower wallets and owns a
// BorrowerMirror for every occupied slot.
type PageMirror struct {
	watcher
	page uint16

	// updateMu serializes listing updates against each other and against teardown.
	updateMu  sync.Mutex
	borrowers map[string]*BorrowerMirror
}

// NewPageMirror creates an uninitialized mirror for page.
func NewPageMirror(deps *Deps, page uint16) *PageMirror {
	m := &PageMirror{
		page:      page,
		borrowers: make(map[string]*BorrowerMirror),
	}
	m.init(deps, "page")
	m.logger = m.logger.With(zap.Uint16("page", page))
	m.update = m.onUpdate
	m.detachChildren = m.detach
	return m
}

// Page returns the page index.
func (m *PageMirror) Page() uint16 {
	return m.page
}

// Borrowers returns the current borrower mirrors ordered by wallet.
func (m *PageMirror) Borrowers() []*BorrowerMirror {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	out := make([]*BorrowerMirror, 0, len(m.borrowers))
	for _, b := range m.borrowers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].wallet < out[j].wallet })
	return out
}

// Borrower returns the mirror for wallet, if watched.
func (m *PageMirror) Borrower(wallet ledger.Address) (*BorrowerMirror, bool) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()
	b, ok := m.borrowers[wallet.String()]
	return b, ok
}

func (m *PageMirror) onUpdate(account *ledger.Account) {
	listing, err := m.deps.Decoder.DecodePage(account.Data)
	if err != nil {
		DecodeErrorsTotal.WithLabelValues(m.kind).Inc()
		m.logger.Warn("page-decode-failed", zap.Error(err))
		return
	}

	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	// Teardown may have started while the listing was decoding.
	if !m.active() {
		return
	}

	removed, added := diffMembers(m.borrowers, listing)
	ctx := m.lifetime()

	for _, key := range removed {
		child := m.borrowers[key]
		delete(m.borrowers, key)
		PageChurnTotal.WithLabelValues("removed").Inc()
		m.logger.Info("borrower-watch-removed", zap.String("wallet", key))
		go m.teardownChild(context.WithoutCancel(ctx), child)
	}

	for _, wallet := range added {
		position, resolveErr := m.deps.Positions.PositionAddress(wallet)
		if resolveErr != nil {
			m.logger.Warn("position-address-failed",
				zap.String("wallet", wallet.String()),
				zap.Error(resolveErr))
			continue
		}

		child := NewBorrowerMirror(m.deps, wallet)
		initErr := child.Initialize(ctx, position)
		if initErr != nil {
			m.logger.Warn("borrower-initialize-failed",
				zap.String("wallet", wallet.String()),
				zap.Error(initErr))
			continue
		}

		m.borrowers[wallet.String()] = child
		PageChurnTotal.WithLabelValues("added").Inc()
		m.logger.Info("borrower-watch-added",
			zap.String("wallet", wallet.String()),
			zap.String("position", position.String()))
	}

	m.logger.Debug("page-listing-updated",
		zap.Int("watched", len(m.borrowers)),
		zap.Int("added", len(added)),
		zap.Int("removed", len(removed)))
}

func (m *PageMirror) detach() []Mirror {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	children := make([]Mirror, 0, len(m.borrowers))
	for key, b := range m.borrowers {
		children = append(children, b)
		delete(m.borrowers, key)
	}
	return children
}

// diffMembers compares the watched set against a decoded listing. It returns
// the watched keys missing from the listing and the listed wallets not yet
// watched, in listing order. Empty slots and duplicates are ignored.
func diffMembers[V any](watched map[string]V, listing []ledger.Address) (removed []string, added []ledger.Address) {
	present := make(map[string]struct{}, len(listing))
	for _, addr := range listing {
		if addr == ledger.SystemProgram || addr.IsZero() {
			continue
		}
		key := addr.String()
		if _, dup := present[key]; dup {
			continue
		}
		present[key] = struct{}{}
		if _, ok := watched[key]; !ok {
			added = append(added, addr)
		}
	}

	for key := range watched {
		if _, ok := present[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)

	return removed, added
}
