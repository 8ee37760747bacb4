package notify

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(s.sent)}, nil
}

func attempt(status types.AttemptStatus) *types.LiquidationAttempt {
	return &types.LiquidationAttempt{
		ID:   "attempt-1",
		Mode: "paper",
		Plan: types.ExecutionPlan{
			Borrower:        "wallet-1",
			CollateralPool:  1,
			DebtPool:        0,
			LiquidatedValue: 250,
			HealthRatio:     1.05,
		},
		Status:     status,
		Signatures: []string{"sig-a", "sig-b"},
	}
}

func TestNewTelegramNotifierWithSender_Validation(t *testing.T) {
	tests := []struct {
		name   string
		sender Sender
		cfg    *TelegramConfig
	}{
		{"nil-sender", nil, &TelegramConfig{ChatID: 1, Logger: zap.NewNop()}},
		{"zero-chat", &recordingSender{}, &TelegramConfig{Logger: zap.NewNop()}},
		{"nil-logger", &recordingSender{}, &TelegramConfig{ChatID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTelegramNotifierWithSender(tt.sender, tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestNewTelegramNotifier_EmptyToken(t *testing.T) {
	_, err := NewTelegramNotifier(&TelegramConfig{ChatID: 1, Logger: zap.NewNop()})
	require.Error(t, err)
}

func TestTelegramNotifier_NotifyAttempt(t *testing.T) {
	sender := &recordingSender{}
	n, err := NewTelegramNotifierWithSender(sender, &TelegramConfig{ChatID: 42, Logger: zap.NewNop()})
	require.NoError(t, err)

	require.NoError(t, n.NotifyAttempt(context.Background(), attempt(types.AttemptSucceeded)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "Liquidation succeeded [paper]")
	assert.Contains(t, sender.sent[0].Text, "sig-a, sig-b")
}

func TestTelegramNotifier_SkippedSuppressed(t *testing.T) {
	sender := &recordingSender{}
	n, err := NewTelegramNotifierWithSender(sender, &TelegramConfig{ChatID: 42, Logger: zap.NewNop()})
	require.NoError(t, err)

	require.NoError(t, n.NotifyAttempt(context.Background(), attempt(types.AttemptSkipped)))
	assert.Empty(t, sender.sent)

	n.notifySkipped = true
	require.NoError(t, n.NotifyAttempt(context.Background(), attempt(types.AttemptSkipped)))
	assert.Len(t, sender.sent, 1)
}

func TestTelegramNotifier_SendError(t *testing.T) {
	sendErr := errors.New("chat not found")
	n, err := NewTelegramNotifierWithSender(&recordingSender{err: sendErr}, &TelegramConfig{ChatID: 42, Logger: zap.NewNop()})
	require.NoError(t, err)

	err = n.NotifyAttempt(context.Background(), attempt(types.AttemptFailed))
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)
}

func TestFormatAttempt(t *testing.T) {
	failed := attempt(types.AttemptFailed)
	failed.Signatures = nil
	failed.Error = "unit 1: confirm timeout"

	got := FormatAttempt(failed)
	want := "❌ Liquidation failed [paper]\n" +
		"Borrower: wallet-1\n" +
		"Health: 1.0500\n" +
		"Value: $250.00 (collateral pool 1, debt pool 0)\n" +
		"Error: unit 1: confirm timeout"
	assert.Equal(t, want, got)
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	assert.NoError(t, n.NotifyAttempt(context.Background(), attempt(types.AttemptSucceeded)))
}
