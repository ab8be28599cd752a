package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
[platforms.reddit]
enabled = true

[[platforms.reddit.groups]]
name = "reports"
kind = "Unconditional"
authors = ["desk"]

[[platforms.reddit.groups]]
name = "dd"
kind = "threshold"
community = "wallstreetbets"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "watchtower", cfg.Bot.Name)
	assert.Equal(t, "3m", cfg.Bot.CheckInterval)
	assert.Equal(t, "1h", cfg.Bot.CleanupInterval)
	assert.Equal(t, "12:00", cfg.Bot.HeartbeatAt)
	require.NotNil(t, cfg.Bot.HeartbeatOnStart)
	assert.True(t, *cfg.Bot.HeartbeatOnStart)

	assert.Equal(t, 100, cfg.System.SentimentCharLimit)
	assert.Equal(t, 100, cfg.System.SummaryCharLimit)
	assert.Equal(t, "cache.json", cfg.System.CacheFile)
	assert.Equal(t, 48*time.Hour, cfg.System.CacheExpiration())
	assert.Equal(t, "json", cfg.System.CacheBackend)
	assert.True(t, cfg.System.ChannelEnabled())
	assert.Equal(t, "telegram", cfg.System.Channel)
	assert.Equal(t, "html", cfg.System.ParseMode)

	assert.Equal(t, "openai", cfg.Classifier.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Classifier.Model)

	reddit := cfg.Platforms["reddit"]
	assert.Equal(t, "reddit", reddit.Type)
	require.Len(t, reddit.Groups, 2)

	reports := reddit.Groups[0]
	assert.Equal(t, KindUnconditional, reports.Kind)
	assert.Equal(t, 25, reports.Limit)
	assert.Equal(t, "168h", reports.Window)
	assert.Equal(t, CacheOnSight, reports.CacheOn)

	dd := reddit.Groups[1]
	assert.Equal(t, "DD", dd.TargetFlair)
	require.NotNil(t, dd.MinScore)
	assert.Equal(t, int64(1000), *dd.MinScore)
	require.NotNil(t, dd.SentimentThreshold)
	assert.Equal(t, 50, *dd.SentimentThreshold)
	assert.Equal(t, "new", dd.Sort)
	assert.Equal(t, "week", dd.TimeFilter)
	assert.Equal(t, CacheOnAccept, dd.CacheOn)
}

func TestParseExplicitZeroThresholds(t *testing.T) {
	cfg, err := Parse([]byte(`
[platforms.reddit]
enabled = true

[[platforms.reddit.groups]]
name = "dd"
kind = "threshold"
community = "stocks"
min_score = 0
sentiment_threshold = 0
`))
	require.NoError(t, err)

	dd := cfg.Platforms["reddit"].Groups[0]
	assert.Equal(t, int64(0), *dd.MinScore)
	assert.Equal(t, 0, *dd.SentimentThreshold)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{
			name: "no enabled platform",
			toml: `[platforms.reddit]
enabled = false`,
			want: "at least one platform",
		},
		{
			name: "unknown platform type",
			toml: `[platforms.mastodon]
enabled = true`,
			want: "unsupported type",
		},
		{
			name: "threshold without community",
			toml: `[platforms.reddit]
enabled = true
[[platforms.reddit.groups]]
kind = "threshold"`,
			want: "community is required",
		},
		{
			name: "author group without authors",
			toml: `[platforms.reddit]
enabled = true
[[platforms.reddit.groups]]
kind = "significance"`,
			want: "authors are required",
		},
		{
			name: "bad heartbeat",
			toml: `[bot]
heartbeat_at = "noon"
[platforms.reddit]
enabled = true`,
			want: "heartbeat_at",
		},
		{
			name: "redis without address",
			toml: `[system]
cache_backend = "redis"
[platforms.reddit]
enabled = true`,
			want: "redis_addr",
		},
		{
			name: "ollama without model",
			toml: `[classifier]
provider = "ollama"
[platforms.reddit]
enabled = true`,
			want: "model is required",
		},
		{
			name: "bad cache_on",
			toml: `[platforms.reddit]
enabled = true
[[platforms.reddit.groups]]
kind = "unconditional"
authors = ["a"]
cache_on = "later"`,
			want: "cache_on",
		},
		{
			name: "rss without feeds",
			toml: `[platforms.news]
type = "rss"
enabled = true`,
			want: "feeds or opml",
		},
		{
			name: "malformed toml",
			toml: `[bot`,
			want: "failed to parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg")
	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("REDDIT_CLIENT", "cid")
	t.Setenv("BLUESKY_IDENTIFIER", "me.bsky.social")

	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "tg", cfg.Secrets.TelegramBotToken)
	assert.Equal(t, "sk", cfg.Secrets.OpenAIAPIKey)
	assert.Equal(t, "cid", cfg.Secrets.RedditClient)
	assert.Equal(t, "me.bsky.social", cfg.Secrets.BlueskyID)
}

func TestRecipients(t *testing.T) {
	sys := SystemConfig{Channel: "telegram", TelegramChatID: "@alerts", TelegramHeartbeatRecipient: "42"}
	alerts, heartbeat := sys.Recipients()
	assert.Equal(t, "@alerts", alerts)
	assert.Equal(t, "42", heartbeat)

	sys = SystemConfig{Channel: "discord", DiscordChannelID: "123"}
	alerts, heartbeat = sys.Recipients()
	assert.Equal(t, "123", alerts)
	assert.Equal(t, "123", heartbeat)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Platforms["reddit"].Groups, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, ParseDuration("5m", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("soon", time.Second))
}
