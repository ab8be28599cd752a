package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"watchtower/internal/platforms"
)

// discordMessageLimit is the maximum content length Discord accepts.
const discordMessageLimit = 2000

type DiscordChannel struct {
	platform *platforms.DiscordPlatform
}

func NewDiscordChannel(platform *platforms.DiscordPlatform) *DiscordChannel {
	return &DiscordChannel{platform: platform}
}

func (c *DiscordChannel) Name() string {
	return "discord"
}

// Send posts to a channel id. Discord renders markdown natively so the parse
// mode is ignored.
func (c *DiscordChannel) Send(ctx context.Context, recipient, text string, mode ParseMode) (string, error) {
	session := c.platform.Session()
	if session == nil {
		return "", fmt.Errorf("discord session not initialized")
	}

	runes := []rune(text)
	if len(runes) > discordMessageLimit {
		text = string(runes[:discordMessageLimit-1]) + "…"
	}

	msg, err := session.ChannelMessageSendComplex(recipient, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord channel message failed: %w", err)
	}

	return msg.ID, nil
}
