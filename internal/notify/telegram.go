package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"watchtower/internal/platforms"
)

type TelegramChannel struct {
	platform *platforms.TelegramPlatform
}

func NewTelegramChannel(platform *platforms.TelegramPlatform) *TelegramChannel {
	return &TelegramChannel{platform: platform}
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

// Send accepts a numeric chat id or an @channel username.
func (c *TelegramChannel) Send(ctx context.Context, recipient, text string, mode ParseMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bot, err := c.platform.Bot()
	if err != nil {
		return "", err
	}

	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(recipient, "@") {
		msg = tgbotapi.NewMessageToChannel(recipient, text)
	} else {
		chatID, err := strconv.ParseInt(recipient, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid telegram chat id %q: %w", recipient, err)
		}
		msg = tgbotapi.NewMessage(chatID, text)
	}

	switch mode {
	case ModeHTML:
		msg.ParseMode = tgbotapi.ModeHTML
	case ModeMarkdown:
		msg.ParseMode = tgbotapi.ModeMarkdown
	}

	sent, err := bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram sendMessage failed: %w", err)
	}

	return strconv.Itoa(sent.MessageID), nil
}
