package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/protocol"
	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	err := a.Start()
	if err != nil {
		return err
	}

	return a.waitForShutdown()
}

// Start launches every component and returns once they are running. Readiness
// flips to true only after every price account has been observed.
func (a *App) Start() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Int("page-start", a.cfg.PageStart),
		zap.Int("page-end", a.cfg.PageEnd),
		zap.Int("pools", len(a.pools.All())),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		return err
	}

	a.logger.Info("application-started",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("ws-url", a.cfg.WSURL),
		zap.String("liquidator", a.signer.PublicKey().String()))

	return nil
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	if a.wsPool != nil {
		err := a.wsPool.Start()
		if err != nil {
			return fmt.Errorf("start websocket pool: %w", err)
		}
	}

	a.wg.Add(1)
	go a.runScheduler()

	err := a.initializeMirrors()
	if err != nil {
		return fmt.Errorf("initialize mirrors: %w", err)
	}

	if a.breaker != nil {
		a.breaker.Start(a.ctx)
	}

	if a.tracker != nil {
		a.wg.Add(1)
		go a.runWalletTracker()
	}

	a.wg.Add(1)
	go a.runCoordinator()

	return nil
}

// initializeMirrors roots one tree per price account and per page.
func (a *App) initializeMirrors() error {
	for _, m := range a.prices {
		pool, _ := a.pools.Get(m.Pool())
		addr := pool.PriceAccount
		if addr.IsZero() {
			var err error
			addr, err = a.addresses.PriceAddress(m.Mint())
			if err != nil {
				return fmt.Errorf("price account for pool %d: %w", m.Pool(), err)
			}
		}

		err := m.Initialize(a.ctx, addr)
		if err != nil {
			return err
		}
	}

	for _, m := range a.pages {
		addr, err := a.addresses.PageAddress(m.Page())
		if err != nil {
			return fmt.Errorf("page %d address: %w", m.Page(), err)
		}

		err = m.Initialize(a.ctx, addr)
		if err != nil {
			return err
		}
	}

	a.logger.Info("mirrors-initialized",
		zap.Int("prices", len(a.prices)),
		zap.Int("pages", len(a.pages)))

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runScheduler() {
	defer a.wg.Done()
	err := a.scheduler.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("scheduler-error", zap.Error(err))
	}
}

func (a *App) runWalletTracker() {
	defer a.wg.Done()
	err := a.tracker.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("wallet-tracker-error", zap.Error(err))
	}
}

func (a *App) runCoordinator() {
	defer a.wg.Done()
	err := a.coordinator.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("coordinator-error", zap.Error(err))
	}
}

// Addresses exposes the address book, mainly for tests that seed accounts.
func (a *App) Addresses() *protocol.AddressBook {
	return a.addresses
}

// Liquidator returns the signer's public key.
func (a *App) Liquidator() ledger.Address {
	return a.signer.PublicKey()
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
