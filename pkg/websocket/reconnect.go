package websocket

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig holds the configuration for exponential backoff reconnection.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = up to 20% extra wait
}

// ReconnectManager retries a connect function with jittered exponential backoff.
type ReconnectManager struct {
	config         ReconnectConfig
	logger         *zap.Logger
	currentBackoff time.Duration
	attempts       int
	mu             sync.Mutex
}

// NewReconnectManager creates a new reconnection manager with the specified config.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	return &ReconnectManager{
		config:         cfg,
		logger:         logger,
		currentBackoff: cfg.InitialDelay,
	}
}

// Reconnect calls connectFunc until it succeeds or ctx is done, waiting the
// current backoff before every attempt.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connectFunc func(context.Context) error) error {
	for {
		err := ctx.Err()
		if err != nil {
			return err
		}

		backoff := rm.nextBackoff()
		rm.logger.Info("attempting-reconnection",
			zap.Duration("backoff", backoff),
			zap.Int("attempt", rm.Attempts()))
		ReconnectAttemptsTotal.Inc()

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		err = connectFunc(ctx)
		if err == nil {
			rm.Reset()
			rm.logger.Info("reconnection-successful")
			return nil
		}

		rm.logger.Warn("reconnection-attempt-failed", zap.Error(err))
		ReconnectFailuresTotal.Inc()
		rm.incrementBackoff()
	}
}

// Attempts returns the number of attempts since the last success.
func (rm *ReconnectManager) Attempts() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.attempts
}

// Reset restores the initial delay.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.currentBackoff = rm.config.InitialDelay
	rm.attempts = 0
}

// nextBackoff returns the current backoff with jitter and counts the attempt.
func (rm *ReconnectManager) nextBackoff() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.attempts++
	jitter := rand.Float64() * rm.config.JitterPercent
	return time.Duration(float64(rm.currentBackoff) * (1.0 + jitter))
}

func (rm *ReconnectManager) incrementBackoff() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	next := time.Duration(float64(rm.currentBackoff) * rm.config.BackoffMultiplier)
	rm.currentBackoff = min(next, rm.config.MaxDelay)
}
