package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestReconnect_ExponentialGrowth tests backoff grows between failed attempts
func TestReconnect_ExponentialGrowth(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay:      30 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		JitterPercent:     0,
	}
	rm := NewReconnectManager(cfg, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	attemptTimes := []time.Time{}
	connectFunc := func(_ context.Context) error {
		attemptTimes = append(attemptTimes, time.Now())
		if len(attemptTimes) >= 3 {
			cancel()
		}
		return errors.New("connection failed")
	}

	_ = rm.Reconnect(ctx, connectFunc)

	if len(attemptTimes) < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", len(attemptTimes))
	}

	first := attemptTimes[1].Sub(attemptTimes[0])
	second := attemptTimes[2].Sub(attemptTimes[1])
	if first < 50*time.Millisecond {
		t.Errorf("expected second wait ~60ms, got %v", first)
	}
	if second < 100*time.Millisecond {
		t.Errorf("expected third wait ~120ms, got %v", second)
	}
}

// TestReconnect_MaxDelayCap tests backoff never exceeds the max delay
func TestReconnect_MaxDelayCap(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          150 * time.Millisecond,
		BackoffMultiplier: 10.0,
		JitterPercent:     0,
	}
	rm := NewReconnectManager(cfg, zap.NewNop())

	rm.incrementBackoff()
	rm.incrementBackoff()

	if got := rm.nextBackoff(); got != 150*time.Millisecond {
		t.Errorf("expected backoff capped at 150ms, got %v", got)
	}
}

// TestReconnect_JitterBounds tests jitter only ever adds delay, within the configured share
func TestReconnect_JitterBounds(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		JitterPercent:     0.2,
	}
	rm := NewReconnectManager(cfg, zap.NewNop())

	for i := 0; i < 100; i++ {
		got := rm.nextBackoff()
		if got < 100*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("backoff %v outside [100ms, 120ms]", got)
		}
	}
}

// TestReconnect_ContextCancellation tests shutdown during backoff
func TestReconnect_ContextCancellation(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
	rm := NewReconnectManager(cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- rm.Reconnect(ctx, func(_ context.Context) error {
			return errors.New("connection failed")
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reconnection didn't stop after context cancellation")
	}
}

// TestReconnect_ResetOnSuccess tests a success restores the initial delay and attempt count
func TestReconnect_ResetOnSuccess(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}
	rm := NewReconnectManager(cfg, zap.NewNop())

	attempts := 0
	err := rm.Reconnect(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection failed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected successful reconnection, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if rm.Attempts() != 0 {
		t.Errorf("expected attempt counter reset, got %d", rm.Attempts())
	}
	if got := rm.nextBackoff(); got != 10*time.Millisecond {
		t.Errorf("expected backoff reset to 10ms, got %v", got)
	}
}
