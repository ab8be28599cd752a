package components

import (
	"context"
	"fmt"
	"sort"

	"watchtower/internal/classifier"
	"watchtower/internal/config"
	"watchtower/internal/platforms"
)

// PlatformComponent owns the external API clients: the notification channel,
// the Bluesky session and the LLM provider.
type PlatformComponent struct {
	config *config.Config

	telegramPlatform  *platforms.TelegramPlatform
	discordPlatform   *platforms.DiscordPlatform
	blueskyPlatforms  map[string]*platforms.BlueskyPlatform
	classifierBackend classifier.Provider
}

func NewPlatformComponent(cfg *config.Config) *PlatformComponent {
	return &PlatformComponent{
		config:           cfg,
		blueskyPlatforms: make(map[string]*platforms.BlueskyPlatform),
	}
}

func (c *PlatformComponent) Name() string {
	return PlatformComponentName
}

func (c *PlatformComponent) Dependencies() []string {
	return []string{}
}

func (c *PlatformComponent) Validate() error {
	secrets := c.config.Secrets

	if c.config.System.ChannelEnabled() {
		switch c.config.System.Channel {
		case "telegram":
			if secrets.TelegramBotToken == "" {
				return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when the telegram channel is enabled")
			}
			if c.config.System.TelegramChatID == "" {
				return fmt.Errorf("telegram_chat_id is required when the telegram channel is enabled")
			}
		case "discord":
			if secrets.DiscordBotToken == "" {
				return fmt.Errorf("DISCORD_BOT_TOKEN is required when the discord channel is enabled")
			}
			if c.config.System.DiscordChannelID == "" {
				return fmt.Errorf("discord_channel_id is required when the discord channel is enabled")
			}
		}
	}

	if c.config.Classifier.Provider == "openai" && secrets.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the openai classifier")
	}

	return nil
}

func (c *PlatformComponent) Initialize(ctx context.Context) error {
	if c.config.System.ChannelEnabled() {
		switch c.config.System.Channel {
		case "telegram":
			telegram, err := platforms.NewTelegramPlatform(c.config.Secrets.TelegramBotToken)
			if err != nil {
				return fmt.Errorf("failed to create telegram platform: %w", err)
			}
			c.telegramPlatform = telegram

		case "discord":
			discord, err := platforms.NewDiscordPlatform(c.config.Secrets.DiscordBotToken)
			if err != nil {
				return fmt.Errorf("failed to create discord platform: %w", err)
			}
			if err := discord.Initialize(ctx); err != nil {
				return fmt.Errorf("discord platform initialization failed: %w", err)
			}
			c.discordPlatform = discord
		}
	}

	for _, name := range c.enabledPlatforms("bluesky") {
		platformCfg := c.config.Platforms[name]
		bluesky, err := platforms.NewBlueskyPlatform(platformCfg.Host, c.config.Secrets.BlueskyID, c.config.Secrets.BlueskyPassword)
		if err != nil {
			return fmt.Errorf("failed to create bluesky platform: %w", err)
		}
		if err := bluesky.Initialize(ctx); err != nil {
			return fmt.Errorf("bluesky platform initialization failed: %w", err)
		}
		c.blueskyPlatforms[name] = bluesky
	}

	provider, err := c.buildProvider()
	if err != nil {
		return err
	}
	c.classifierBackend = provider

	return nil
}

func (c *PlatformComponent) buildProvider() (classifier.Provider, error) {
	cc := c.config.Classifier
	switch cc.Provider {
	case "openai":
		p, err := platforms.NewOpenAIPlatform(c.config.Secrets.OpenAIAPIKey, cc.Model, cc.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai platform: %w", err)
		}
		return p, nil
	case "ollama":
		p, err := platforms.NewOllamaPlatform(cc.Model, cc.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama platform: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", cc.Provider)
	}
}

func (c *PlatformComponent) enabledPlatforms(platformType string) []string {
	var names []string
	for name, p := range c.config.Platforms {
		if p.Enabled && p.Type == platformType {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *PlatformComponent) Close(ctx context.Context) error {
	if c.discordPlatform != nil {
		c.discordPlatform.Close(ctx)
	}
	for _, bluesky := range c.blueskyPlatforms {
		bluesky.Close(ctx)
	}
	return nil
}

// Telegram is nil unless telegram is the enabled channel.
func (c *PlatformComponent) Telegram() *platforms.TelegramPlatform {
	return c.telegramPlatform
}

// Discord is nil unless discord is the enabled channel.
func (c *PlatformComponent) Discord() *platforms.DiscordPlatform {
	return c.discordPlatform
}

func (c *PlatformComponent) Bluesky(name string) *platforms.BlueskyPlatform {
	return c.blueskyPlatforms[name]
}

func (c *PlatformComponent) Provider() classifier.Provider {
	return c.classifierBackend
}
