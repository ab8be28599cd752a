package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Bot        BotConfig                 `toml:"bot"`
	Log        LogConfig                 `toml:"log"`
	System     SystemConfig              `toml:"system"`
	Classifier ClassifierConfig          `toml:"classifier"`
	Server     ServerConfig              `toml:"server"`
	Platforms  map[string]PlatformConfig `toml:"platforms"`

	// Secrets are never read from the TOML file.
	Secrets Secrets `toml:"-"`
}

type BotConfig struct {
	Name             string `toml:"name"`
	CheckInterval    string `toml:"check_interval"`
	CleanupInterval  string `toml:"cleanup_interval"`
	HeartbeatAt      string `toml:"heartbeat_at"`
	HeartbeatOnStart *bool  `toml:"heartbeat_on_start"`
	RunOnce          bool   `toml:"run_once"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type SystemConfig struct {
	SentimentCharLimit         int    `toml:"sentiment_char_limit"`
	SummaryCharLimit           int    `toml:"summary_char_limit"`
	CacheFile                  string `toml:"cache_file"`
	CacheExpirationSeconds     int64  `toml:"cache_expiration_seconds"`
	CacheBackend               string `toml:"cache_backend"`
	RedisAddr                  string `toml:"redis_addr"`
	RedisKey                   string `toml:"redis_key"`
	TelegramEnabled            *bool  `toml:"telegram_enabled"`
	TelegramChatID             string `toml:"telegram_chat_id"`
	TelegramHeartbeatRecipient string `toml:"telegram_heartbeat_recipient"`
	DiscordChannelID           string `toml:"discord_channel_id"`
	Channel                    string `toml:"channel"`
	ParseMode                  string `toml:"parse_mode"`
}

type ClassifierConfig struct {
	Provider            string  `toml:"provider"`
	Model               string  `toml:"model"`
	BaseURL             string  `toml:"base_url"`
	Temperature         float64 `toml:"temperature"`
	RateInterval        string  `toml:"rate_interval"`
	ReviewPromptPath    string  `toml:"review_prompt_path"`
	SentimentPromptPath string  `toml:"sentiment_prompt_path"`
	SummaryPromptPath   string  `toml:"summary_prompt_path"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PlatformConfig struct {
	Type    string `toml:"type"`
	Enabled bool   `toml:"enabled"`

	// reddit, bluesky
	Host string `toml:"host"`
	// rss: name -> feed URL
	Feeds map[string]string `toml:"feeds"`
	// rss: OPML subscription list, file path or URL. Explicit feeds win on
	// name clashes.
	OPML string `toml:"opml"`

	Groups []GroupConfig `toml:"groups"`
}

type GroupConfig struct {
	Name               string   `toml:"name"`
	Kind               string   `toml:"kind"`
	Label              string   `toml:"label"`
	Authors            []string `toml:"authors"`
	Limit              int      `toml:"limit"`
	Window             string   `toml:"window"`
	Community          string   `toml:"community"`
	TargetFlair        string   `toml:"target_flair"`
	MinScore           *int64   `toml:"min_score"`
	SentimentThreshold *int     `toml:"sentiment_threshold"`
	GateCharLimit      int      `toml:"gate_char_limit"`
	Sort               string   `toml:"sort"`
	TimeFilter         string   `toml:"time_filter"`
	CacheOn            string   `toml:"cache_on"`
}

type Secrets struct {
	TelegramBotToken string
	DiscordBotToken  string
	OpenAIAPIKey     string
	RedditClient     string
	RedditSecret     string
	RedditUsername   string
	RedditPassword   string
	RedditUserAgent  string
	BlueskyID        string
	BlueskyPassword  string
}

const (
	KindUnconditional = "unconditional"
	KindSignificance  = "significance"
	KindThreshold     = "threshold"

	CacheOnSight  = "sight"
	CacheOnAccept = "accept"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config.Secrets = SecretsFromEnv()
	return &config, nil
}

func SecretsFromEnv() Secrets {
	return Secrets{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DiscordBotToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		RedditClient:     os.Getenv("REDDIT_CLIENT"),
		RedditSecret:     os.Getenv("REDDIT_SECRET"),
		RedditUsername:   os.Getenv("REDDIT_USERNAME"),
		RedditPassword:   os.Getenv("REDDIT_PASSWORD"),
		RedditUserAgent:  os.Getenv("REDDIT_USER_AGENT"),
		BlueskyID:        os.Getenv("BLUESKY_IDENTIFIER"),
		BlueskyPassword:  os.Getenv("BLUESKY_PASSWORD"),
	}
}

func validateConfig(config *Config) error {
	if config.Bot.Name == "" {
		config.Bot.Name = "watchtower"
	}

	if config.Bot.CheckInterval == "" {
		config.Bot.CheckInterval = "3m"
	}
	if _, err := time.ParseDuration(config.Bot.CheckInterval); err != nil {
		return fmt.Errorf("invalid check_interval: %w", err)
	}

	if config.Bot.CleanupInterval == "" {
		config.Bot.CleanupInterval = "1h"
	}
	if _, err := time.ParseDuration(config.Bot.CleanupInterval); err != nil {
		return fmt.Errorf("invalid cleanup_interval: %w", err)
	}

	if config.Bot.HeartbeatAt == "" {
		config.Bot.HeartbeatAt = "12:00"
	}
	if _, err := time.Parse("15:04", config.Bot.HeartbeatAt); err != nil {
		return fmt.Errorf("invalid heartbeat_at %q: want HH:MM", config.Bot.HeartbeatAt)
	}

	if config.Bot.HeartbeatOnStart == nil {
		config.Bot.HeartbeatOnStart = boolPtr(true)
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateSystem(&config.System); err != nil {
		return err
	}

	if config.Classifier.Provider == "" {
		config.Classifier.Provider = "openai"
	}
	switch config.Classifier.Provider {
	case "openai":
		if config.Classifier.Model == "" {
			config.Classifier.Model = "gpt-4o-mini"
		}
	case "ollama":
		if config.Classifier.Model == "" {
			return fmt.Errorf("classifier model is required for the ollama provider")
		}
	default:
		return fmt.Errorf("unsupported classifier provider: %s", config.Classifier.Provider)
	}

	if config.Classifier.RateInterval == "" {
		config.Classifier.RateInterval = "1s"
	}
	if _, err := time.ParseDuration(config.Classifier.RateInterval); err != nil {
		return fmt.Errorf("invalid classifier rate_interval: %w", err)
	}

	enabled := 0
	for name, platform := range config.Platforms {
		if !platform.Enabled {
			continue
		}
		enabled++

		if platform.Type == "" {
			platform.Type = name
		}
		switch platform.Type {
		case "reddit", "bluesky":
		case "rss":
			if len(platform.Feeds) == 0 && platform.OPML == "" {
				return fmt.Errorf("platform %s: rss platforms need feeds or opml", name)
			}
		default:
			return fmt.Errorf("platform %s: unsupported type: %s", name, platform.Type)
		}

		for i := range platform.Groups {
			if err := validateGroup(&platform.Groups[i]); err != nil {
				return fmt.Errorf("platform %s: %w", name, err)
			}
		}

		config.Platforms[name] = platform
	}

	if enabled == 0 {
		return fmt.Errorf("at least one platform must be enabled")
	}

	return nil
}

func validateSystem(sys *SystemConfig) error {
	if sys.SentimentCharLimit == 0 {
		sys.SentimentCharLimit = 100
	}
	if sys.SummaryCharLimit == 0 {
		sys.SummaryCharLimit = 100
	}
	if sys.CacheFile == "" {
		sys.CacheFile = "cache.json"
	}
	if sys.CacheExpirationSeconds == 0 {
		sys.CacheExpirationSeconds = 172800
	}
	if sys.CacheExpirationSeconds < 0 {
		return fmt.Errorf("cache_expiration_seconds must be positive")
	}

	if sys.CacheBackend == "" {
		sys.CacheBackend = "json"
	}
	switch sys.CacheBackend {
	case "json", "sqlite":
	case "redis":
		if sys.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis cache backend")
		}
		if sys.RedisKey == "" {
			sys.RedisKey = "watchtower:seen"
		}
	default:
		return fmt.Errorf("unsupported cache_backend: %s", sys.CacheBackend)
	}

	if sys.TelegramEnabled == nil {
		sys.TelegramEnabled = boolPtr(true)
	}
	if sys.TelegramHeartbeatRecipient == "" {
		sys.TelegramHeartbeatRecipient = sys.TelegramChatID
	}

	if sys.Channel == "" {
		sys.Channel = "telegram"
	}
	switch sys.Channel {
	case "telegram":
		if sys.ParseMode == "" {
			sys.ParseMode = "html"
		}
	case "discord":
		if sys.ParseMode == "" {
			sys.ParseMode = "markdown"
		}
	default:
		return fmt.Errorf("unsupported channel: %s", sys.Channel)
	}

	switch sys.ParseMode {
	case "html", "markdown", "plain":
	default:
		return fmt.Errorf("unsupported parse_mode: %s", sys.ParseMode)
	}

	return nil
}

func validateGroup(g *GroupConfig) error {
	g.Kind = strings.ToLower(g.Kind)

	if g.Name == "" {
		g.Name = g.Kind
	}
	if g.Limit == 0 {
		g.Limit = 25
	}
	if g.Window == "" {
		g.Window = "168h"
	}
	if _, err := time.ParseDuration(g.Window); err != nil {
		return fmt.Errorf("group %s: invalid window: %w", g.Name, err)
	}
	if g.GateCharLimit == 0 {
		g.GateCharLimit = 100
	}

	switch g.Kind {
	case KindUnconditional, KindSignificance:
		if len(g.Authors) == 0 {
			return fmt.Errorf("group %s: authors are required for %s groups", g.Name, g.Kind)
		}
		if g.CacheOn == "" {
			g.CacheOn = CacheOnSight
		}

	case KindThreshold:
		if g.Community == "" {
			return fmt.Errorf("group %s: community is required for threshold groups", g.Name)
		}
		if g.TargetFlair == "" {
			g.TargetFlair = "DD"
		}
		if g.MinScore == nil {
			g.MinScore = int64Ptr(1000)
		}
		if g.SentimentThreshold == nil {
			g.SentimentThreshold = intPtr(50)
		}
		if g.Sort == "" {
			g.Sort = "new"
		}
		if g.TimeFilter == "" {
			g.TimeFilter = "week"
		}
		if g.CacheOn == "" {
			g.CacheOn = CacheOnAccept
		}

	default:
		return fmt.Errorf("group %s: unsupported kind: %q", g.Name, g.Kind)
	}

	switch g.CacheOn {
	case CacheOnSight, CacheOnAccept:
	default:
		return fmt.Errorf("group %s: unsupported cache_on: %q", g.Name, g.CacheOn)
	}

	return nil
}

func ParseDuration(s string, defaultValue time.Duration) time.Duration {
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

func (s SystemConfig) CacheExpiration() time.Duration {
	return time.Duration(s.CacheExpirationSeconds) * time.Second
}

func (s SystemConfig) ChannelEnabled() bool {
	return s.TelegramEnabled == nil || *s.TelegramEnabled
}

// Recipients returns the alert and heartbeat destinations for the active
// channel.
func (s SystemConfig) Recipients() (alerts, heartbeat string) {
	if s.Channel == "discord" {
		return s.DiscordChannelID, s.DiscordChannelID
	}
	return s.TelegramChatID, s.TelegramHeartbeatRecipient
}

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func int64Ptr(i int64) *int64 { return &i }
