package websocket

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"go.uber.org/zap"
)

// PoolConfig holds WebSocket pool configuration.
type PoolConfig struct {
	Size                  int // Number of connections (default: 1)
	URL                   string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	RequestTimeout        time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	NotificationBuffer    int // Per-connection buffer size
	Logger                *zap.Logger
}

type pooledSub struct {
	manager int
	inner   ledger.SubscriptionID
}

// Pool spreads account subscriptions over several connections. An address
// always lands on the same connection.
type Pool struct {
	cfg      PoolConfig
	managers []*Manager
	logger   *zap.Logger

	nextID atomic.Uint64
	mu     sync.Mutex
	subs   map[ledger.SubscriptionID]pooledSub
}

// NewPool creates a new WebSocket connection pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}

	pool := &Pool{
		cfg:      cfg,
		managers: make([]*Manager, cfg.Size),
		logger:   cfg.Logger,
		subs:     make(map[ledger.SubscriptionID]pooledSub),
	}

	for i := range cfg.Size {
		pool.managers[i] = New(Config{
			URL:                   cfg.URL,
			DialTimeout:           cfg.DialTimeout,
			PongTimeout:           cfg.PongTimeout,
			PingInterval:          cfg.PingInterval,
			RequestTimeout:        cfg.RequestTimeout,
			ReconnectInitialDelay: cfg.ReconnectInitialDelay,
			ReconnectMaxDelay:     cfg.ReconnectMaxDelay,
			ReconnectBackoffMult:  cfg.ReconnectBackoffMult,
			NotificationBuffer:    cfg.NotificationBuffer,
			Logger:                cfg.Logger.With(zap.Int("manager-id", i)),
		})
	}

	return pool
}

// Start starts all managers concurrently. Any failure fails the pool.
func (p *Pool) Start() error {
	p.logger.Info("websocket-pool-starting", zap.Int("pool-size", len(p.managers)))

	errChan := make(chan error, len(p.managers))
	var startWg sync.WaitGroup

	for i, mgr := range p.managers {
		startWg.Add(1)
		go func(index int, manager *Manager) {
			defer startWg.Done()

			err := manager.Start()
			if err != nil {
				p.logger.Error("manager-start-failed",
					zap.Int("manager-id", index),
					zap.Error(err))
				errChan <- fmt.Errorf("manager %d start failed: %w", index, err)
			}
		}(i, mgr)
	}

	startWg.Wait()
	close(errChan)

	var startErrors []error
	for err := range errChan {
		startErrors = append(startErrors, err)
	}
	if len(startErrors) > 0 {
		for _, mgr := range p.managers {
			_ = mgr.Close()
		}
		return errors.Join(startErrors...)
	}

	PoolActiveConnections.Set(float64(len(p.managers)))
	p.logger.Info("websocket-pool-started", zap.Int("active-managers", len(p.managers)))

	return nil
}

// SubscribeAccount routes the subscription to the address's manager.
func (p *Pool) SubscribeAccount(
	ctx context.Context,
	addr ledger.Address,
	commitment ledger.Commitment,
	handler ledger.AccountHandler,
) (ledger.SubscriptionID, error) {
	idx := p.managerIndex(addr)

	inner, err := p.managers[idx].SubscribeAccount(ctx, addr, commitment, handler)
	if err != nil {
		return 0, err
	}

	id := ledger.SubscriptionID(p.nextID.Add(1))
	p.mu.Lock()
	p.subs[id] = pooledSub{manager: idx, inner: inner}
	p.mu.Unlock()

	p.updateDistributionMetrics()
	return id, nil
}

// Unsubscribe closes a subscription opened through the pool.
func (p *Pool) Unsubscribe(ctx context.Context, id ledger.SubscriptionID) error {
	p.mu.Lock()
	sub, ok := p.subs[id]
	delete(p.subs, id)
	p.mu.Unlock()

	if !ok {
		return ErrUnknownSubscription
	}

	err := p.managers[sub.manager].Unsubscribe(ctx, sub.inner)
	p.updateDistributionMetrics()
	return err
}

// managerIndex picks a manager by CRC32 of the address.
func (p *Pool) managerIndex(addr ledger.Address) int {
	return int(crc32.ChecksumIEEE([]byte(addr)) % uint32(len(p.managers)))
}

func (p *Pool) updateDistributionMetrics() {
	for i, mgr := range p.managers {
		PoolSubscriptionDistribution.WithLabelValues(strconv.Itoa(i)).Set(float64(mgr.SubscriptionTotal()))
	}
}

// Stats returns the subscription count per manager.
func (p *Pool) Stats() []int {
	out := make([]int, len(p.managers))
	for i, mgr := range p.managers {
		out[i] = mgr.SubscriptionTotal()
	}
	return out
}

// Connected reports whether every manager has a live connection.
func (p *Pool) Connected() bool {
	for _, mgr := range p.managers {
		if !mgr.Connected() {
			return false
		}
	}
	return true
}

// Close closes every manager.
func (p *Pool) Close() error {
	p.logger.Info("closing-websocket-pool")

	var errs []error
	for _, mgr := range p.managers {
		err := mgr.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	PoolActiveConnections.Set(0)
	return errors.Join(errs...)
}
