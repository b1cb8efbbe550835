package services

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"github.com/openpnl/bitget-orders-go/internal/config"
)

// ExtractionNotifier sends a Telegram message when an in-process extraction
// finishes. Notification failures are logged and swallowed; delivery is
// best-effort and never affects the pipeline outcome.
type ExtractionNotifier struct {
	bot    *bot.Bot
	chatID string
	logger *logrus.Logger
}

// NewExtractionNotifier creates a notifier, or nil when no bot token or
// chat is configured.
func NewExtractionNotifier(cfg config.TelegramConfig, logger *logrus.Logger) *ExtractionNotifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil
	}
	telegramBot, err := bot.New(cfg.BotToken)
	if err != nil {
		logger.WithError(err).Warn("Telegram bot init failed, notifications disabled")
		return nil
	}
	return &ExtractionNotifier{
		bot:    telegramBot,
		chatID: cfg.ChatID,
		logger: logger,
	}
}

// NotifyCompletion reports the outcome of one extraction execution.
func (n *ExtractionNotifier) NotifyCompletion(ctx context.Context, execution string, totalOrders, failedSymbols int, runErr error) {
	var text string
	if runErr != nil {
		text = fmt.Sprintf("Extraction %s failed: %v", execution, runErr)
	} else {
		text = fmt.Sprintf("Extraction %s completed: %d orders merged, %d symbols failed", execution, totalOrders, failedSymbols)
	}

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		n.logger.WithError(err).Warn("Failed to send completion notification")
	}
}
