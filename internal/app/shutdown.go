package app

import (
	"context"
	"errors"
	"time"

	"github.com/mselser95/lending-liquidator/internal/mirror"
	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Attempts already in flight finish and get recorded before storage closes.
	a.coordinator.Wait()

	a.teardownMirrors(shutdownCtx)
	a.closeResources()

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) teardownMirrors(ctx context.Context) {
	for _, m := range a.pages {
		teardown(ctx, m, a.logger)
	}
	for _, m := range a.prices {
		teardown(ctx, m, a.logger)
	}
}

func teardown(ctx context.Context, m mirror.Mirror, logger *zap.Logger) {
	err := m.Teardown(ctx)
	if err != nil && !errors.Is(err, mirror.ErrNotInitialized) {
		logger.Warn("mirror-teardown-error",
			zap.String("address", m.Address().String()),
			zap.Error(err))
	}
}

// closeResources releases connections. It is safe on a partially built App.
func (a *App) closeResources() {
	if a.wsPool != nil {
		err := a.wsPool.Close()
		if err != nil {
			a.logger.Error("websocket-pool-close-error", zap.Error(err))
		}
	}

	if a.storage != nil {
		err := a.storage.Close()
		if err != nil {
			a.logger.Error("storage-close-error", zap.Error(err))
		}
	}

	if a.tokenCache != nil {
		a.tokenCache.Close()
	}

	if a.rpc != nil {
		a.rpc.Close()
	}
}
