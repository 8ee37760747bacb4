// Package notify sends liquidation attempt alerts to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

// Notifier delivers attempt alerts.
type Notifier interface {
	NotifyAttempt(ctx context.Context, attempt *types.LiquidationAttempt) error
}

// Sender is the subset of tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts attempt summaries to one Telegram chat.
type TelegramNotifier struct {
	sender Sender
	chatID int64
	// notifySkipped also reports attempts skipped by the circuit breaker.
	notifySkipped bool
	logger        *zap.Logger
}

// TelegramConfig holds configuration for the Telegram notifier.
type TelegramConfig struct {
	Token         string
	ChatID        int64
	NotifySkipped bool
	Logger        *zap.Logger
}

// NewTelegramNotifier connects to the Bot API with the configured token.
func NewTelegramNotifier(cfg *TelegramConfig) (*TelegramNotifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token cannot be empty")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return NewTelegramNotifierWithSender(bot, cfg)
}

// NewTelegramNotifierWithSender builds a notifier around an existing sender.
func NewTelegramNotifierWithSender(sender Sender, cfg *TelegramConfig) (*TelegramNotifier, error) {
	if sender == nil {
		return nil, errors.New("sender cannot be nil")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id cannot be zero")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	cfg.Logger.Info("telegram-notifier-initialized", zap.Int64("chat-id", cfg.ChatID))

	return &TelegramNotifier{
		sender:        sender,
		chatID:        cfg.ChatID,
		notifySkipped: cfg.NotifySkipped,
		logger:        cfg.Logger,
	}, nil
}

// NotifyAttempt sends a summary of attempt.
func (t *TelegramNotifier) NotifyAttempt(ctx context.Context, attempt *types.LiquidationAttempt) error {
	if attempt.Status == types.AttemptSkipped && !t.notifySkipped {
		NotificationsTotal.WithLabelValues("suppressed").Inc()
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatAttempt(attempt))
	msg.DisableWebPagePreview = true

	_, err := t.sender.Send(msg)
	if err != nil {
		NotificationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("send telegram message: %w", err)
	}

	NotificationsTotal.WithLabelValues("sent").Inc()
	t.logger.Debug("attempt-notified",
		zap.String("attempt-id", attempt.ID),
		zap.String("status", string(attempt.Status)))
	return nil
}

// NopNotifier discards every alert.
type NopNotifier struct{}

// NotifyAttempt implements Notifier.
func (NopNotifier) NotifyAttempt(context.Context, *types.LiquidationAttempt) error {
	return nil
}

// FormatAttempt renders attempt as a plain-text alert.
func FormatAttempt(attempt *types.LiquidationAttempt) string {
	plan := attempt.Plan

	var b strings.Builder
	switch attempt.Status {
	case types.AttemptSucceeded:
		b.WriteString("✅ Liquidation succeeded")
	case types.AttemptFailed:
		b.WriteString("❌ Liquidation failed")
	default:
		b.WriteString("⏸ Liquidation skipped")
	}
	fmt.Fprintf(&b, " [%s]\n", attempt.Mode)
	fmt.Fprintf(&b, "Borrower: %s\n", plan.Borrower)
	fmt.Fprintf(&b, "Health: %.4f\n", plan.HealthRatio)
	fmt.Fprintf(&b, "Value: $%.2f (collateral pool %d, debt pool %d)\n",
		plan.LiquidatedValue, plan.CollateralPool, plan.DebtPool)
	if len(attempt.Signatures) > 0 {
		fmt.Fprintf(&b, "Signatures: %s\n", strings.Join(attempt.Signatures, ", "))
	}
	if attempt.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", attempt.Error)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
