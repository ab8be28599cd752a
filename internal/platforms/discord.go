package platforms

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordPlatform holds a REST-only session. The gateway websocket is never
// opened since the bot only posts messages.
type DiscordPlatform struct {
	botToken string
	session  *discordgo.Session
}

func NewDiscordPlatform(botToken string) (*DiscordPlatform, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord platform: DISCORD_BOT_TOKEN is required")
	}

	return &DiscordPlatform{botToken: botToken}, nil
}

func (p *DiscordPlatform) Initialize(ctx context.Context) error {
	session, err := discordgo.New("Bot " + p.botToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.ShouldRetryOnRateLimit = false

	p.session = session
	return nil
}

func (p *DiscordPlatform) Close(ctx context.Context) error {
	if p.session != nil {
		p.session.Close()
	}
	return nil
}

func (p *DiscordPlatform) Session() *discordgo.Session {
	return p.session
}
