// Package telegram delivers bot status and trade notifications to a Telegram
// chat. Delivery is fire-and-forget, a failed send is logged and dropped so a
// Telegram outage can never stall trading.
package telegram

import (
	"context"
	"fmt"

	"coinpilot/internal/ports"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier implements ports.Notifier on the Telegram Bot API.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger ports.Logger
}

// Config holds the Telegram channel settings.
type Config struct {
	Enabled bool
	Token   string
	ChatID  int64
	Logger  ports.Logger
}

// New creates a Telegram notifier. When the channel is disabled the returned
// notifier silently swallows every message, callers never need to care.
func New(cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if !cfg.Enabled {
		cfg.Logger.Info(context.Background(), "Telegram notifications are disabled")
		return &Notifier{logger: cfg.Logger}, nil
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required when telegram is enabled")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	cfg.Logger.Info(context.Background(), "Telegram notifier connected", map[string]interface{}{
		"account": bot.Self.UserName,
		"chatID":  cfg.ChatID,
	})

	return &Notifier{
		bot:    bot,
		chatID: cfg.ChatID,
		logger: cfg.Logger,
	}, nil
}

// Send delivers a Markdown-formatted message to the configured chat.
func (n *Notifier) Send(ctx context.Context, text string) {
	if n.bot == nil {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn(ctx, "Failed to send Telegram message", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
