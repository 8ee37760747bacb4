// Package mirror keeps local copies of remote ledger accounts current.
//
// Every mirror loads its account once through the rate-limited scheduler and
// then follows it with a push subscription. Page mirrors own one borrower
// mirror per wallet listed on the page and reconcile that set on every update.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mselser95/lending-liquidator/internal/scheduler"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("mirror already initialized")
	// ErrNotInitialized is returned by Teardown on a mirror that was never initialized.
	ErrNotInitialized = errors.New("mirror not initialized")
)

// Mirror is one node of the account tree.
type Mirror interface {
	Address() ledger.Address
	Initialize(ctx context.Context, addr ledger.Address) error
	Teardown(ctx context.Context) error
}

// Decoder turns raw account bytes into typed payloads.
type Decoder interface {
	DecodePage(data []byte) ([]ledger.Address, error)
	DecodePosition(data []byte) (*types.PositionSnapshot, error)
	DecodePrice(data []byte) (types.PoolID, float64, error)
}

// TaskScheduler queues rate-limited work.
type TaskScheduler interface {
	Submit(task scheduler.Task)
}

// PositionResolver maps a borrower wallet to its position account.
type PositionResolver interface {
	PositionAddress(wallet ledger.Address) (ledger.Address, error)
}

// Deps are the collaborators shared by every mirror in a tree.
type Deps struct {
	Source    ledger.AccountSource
	Scheduler TaskScheduler
	Decoder   Decoder
	Positions PositionResolver
	Logger    *zap.Logger
}

// Validate checks that every dependency is set.
func (d *Deps) Validate() error {
	switch {
	case d == nil:
		return errors.New("deps cannot be nil")
	case d.Source == nil:
		return errors.New("account source cannot be nil")
	case d.Scheduler == nil:
		return errors.New("scheduler cannot be nil")
	case d.Decoder == nil:
		return errors.New("decoder cannot be nil")
	case d.Positions == nil:
		return errors.New("position resolver cannot be nil")
	case d.Logger == nil:
		return errors.New("logger cannot be nil")
	}
	return nil
}

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateActive
	stateTornDown
)

// watcher implements the subscription lifecycle shared by all mirror kinds.
type watcher struct {
	deps   *Deps
	kind   string
	logger *zap.Logger

	// update decodes and applies one account state. Set by the embedding type.
	update func(account *ledger.Account)
	// detachChildren removes and returns owned children. Nil for leaves.
	detachChildren func() []Mirror

	mu         sync.Mutex
	state      lifecycle
	addr       ledger.Address
	sub        ledger.SubscriptionID
	subscribed bool
	ctx        context.Context
	cancel     context.CancelFunc
}

func (w *watcher) init(deps *Deps, kind string) {
	w.deps = deps
	w.kind = kind
	w.logger = deps.Logger.With(zap.String("mirror", kind))
}

// Address returns the watched account, or "" before Initialize.
func (w *watcher) Address() ledger.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addr
}

// Initialize validates addr and queues the initial load. The load itself
// fetches the account once and then opens a confirmed push subscription; both
// paths feed the same update handler.
func (w *watcher) Initialize(ctx context.Context, addr ledger.Address) error {
	err := addr.Validate()
	if err != nil {
		return fmt.Errorf("initialize %s mirror: %w", w.kind, err)
	}

	w.mu.Lock()
	if w.state != stateIdle {
		w.mu.Unlock()
		return ErrAlreadyInitialized
	}
	w.state = stateActive
	w.addr = addr
	w.ctx, w.cancel = context.WithCancel(ctx)
	lifeCtx := w.ctx
	w.mu.Unlock()

	ActiveMirrors.WithLabelValues(w.kind).Inc()

	w.deps.Scheduler.Submit(func() {
		go w.load(lifeCtx, addr)
	})

	return nil
}

func (w *watcher) load(ctx context.Context, addr ledger.Address) {
	account, err := w.deps.Source.FetchAccount(ctx, addr)
	if err != nil {
		FetchErrorsTotal.WithLabelValues(w.kind).Inc()
		w.logger.Warn("account-fetch-failed",
			zap.String("address", addr.String()),
			zap.Error(err))
	} else {
		w.handle(account)
	}

	id, err := w.deps.Source.SubscribeAccount(ctx, addr, ledger.CommitmentConfirmed, w.handle)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("account-subscribe-failed",
				zap.String("address", addr.String()),
				zap.Error(err))
		}
		return
	}

	w.mu.Lock()
	if w.state == stateTornDown {
		w.mu.Unlock()
		// Teardown ran while the subscription was being opened.
		unsubErr := w.deps.Source.Unsubscribe(context.WithoutCancel(ctx), id)
		if unsubErr != nil {
			w.logger.Warn("late-unsubscribe-failed",
				zap.String("address", addr.String()),
				zap.Error(unsubErr))
		}
		return
	}
	w.sub = id
	w.subscribed = true
	w.mu.Unlock()
}

func (w *watcher) handle(account *ledger.Account) {
	if !w.active() {
		return
	}

	if account == nil {
		w.logger.Info("account-not-created", zap.String("address", w.Address().String()))
		return
	}

	UpdatesTotal.WithLabelValues(w.kind).Inc()
	w.update(account)
}

func (w *watcher) active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == stateActive
}

// lifetime returns the context bound to this mirror's subscription.
func (w *watcher) lifetime() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

// Teardown cancels the subscription, waiting for the cancellation, and then
// starts teardown of every child without waiting for it to finish.
func (w *watcher) Teardown(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case stateIdle:
		w.mu.Unlock()
		return ErrNotInitialized
	case stateTornDown:
		w.mu.Unlock()
		return nil
	}
	w.state = stateTornDown
	id, subscribed := w.sub, w.subscribed
	w.subscribed = false
	w.cancel()
	addr := w.addr
	w.mu.Unlock()

	ActiveMirrors.WithLabelValues(w.kind).Dec()

	var unsubErr error
	if subscribed {
		unsubErr = w.deps.Source.Unsubscribe(ctx, id)
		if unsubErr != nil {
			w.logger.Warn("unsubscribe-failed",
				zap.String("address", addr.String()),
				zap.Error(unsubErr))
			unsubErr = fmt.Errorf("unsubscribe %s: %w", addr, unsubErr)
		}
	}

	if w.detachChildren != nil {
		childCtx := context.WithoutCancel(ctx)
		for _, child := range w.detachChildren() {
			go w.teardownChild(childCtx, child)
		}
	}

	return unsubErr
}

func (w *watcher) teardownChild(ctx context.Context, child Mirror) {
	err := child.Teardown(ctx)
	if err != nil && !errors.Is(err, ErrNotInitialized) {
		w.logger.Warn("child-teardown-failed",
			zap.String("child", child.Address().String()),
			zap.Error(err))
	}
}
