package platforms

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramPlatform creates the bot client on first use. Construction calls
// getMe, so a network blip at startup does not take the process down.
type TelegramPlatform struct {
	token    string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegramPlatform(token string) (*TelegramPlatform, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram platform: TELEGRAM_BOT_TOKEN is required")
	}

	return &TelegramPlatform{
		token:    token,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// WithEndpoint overrides the Bot API endpoint format ("%s" token, "%s" method).
func (p *TelegramPlatform) WithEndpoint(endpoint string) *TelegramPlatform {
	p.endpoint = endpoint
	return p
}

func (p *TelegramPlatform) Bot() (*tgbotapi.BotAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bot != nil {
		return p.bot, nil
	}

	bot, err := tgbotapi.NewBotAPIWithClient(p.token, p.endpoint, p.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	p.bot = bot
	return bot, nil
}
