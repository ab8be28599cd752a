package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"watchtower/internal/classifier"
	"watchtower/internal/components"
	"watchtower/internal/config"
	"watchtower/internal/core"
	"watchtower/internal/dedup"
	"watchtower/internal/gating"
	"watchtower/internal/notify"
	"watchtower/internal/sources"
	"watchtower/internal/state"
	"watchtower/internal/storage"
	"watchtower/internal/template"

	// seen-store backends
	_ "watchtower/internal/storage/jsonfile"
	_ "watchtower/internal/storage/redis"
	_ "watchtower/internal/storage/sqlite"
)

type Loader struct {
	config *config.Config
	logger *slog.Logger
}

func NewLoader(cfg *config.Config) *Loader {
	return &Loader{
		config: cfg,
		logger: slog.Default(),
	}
}

func (l *Loader) storageComponent() *components.StorageComponent {
	sys := l.config.System
	return components.NewStorageComponent(sys.CacheBackend, storage.Options{
		Path:      sys.CacheFile,
		RedisAddr: sys.RedisAddr,
		RedisKey:  sys.RedisKey,
	})
}

// Initialize brings up every component and wires the check pipeline.
func (l *Loader) Initialize(ctx context.Context) (*state.State, error) {
	registry := components.NewRegistry()
	l.logger.Info("Initializing all components")

	storageComp := l.storageComponent()
	if err := registry.Register(storageComp); err != nil {
		return nil, fmt.Errorf("failed to register storage component: %w", err)
	}

	platformComp := components.NewPlatformComponent(l.config)
	if err := registry.Register(platformComp); err != nil {
		return nil, fmt.Errorf("failed to register platform component: %w", err)
	}

	serverComp := components.NewServerComponent(l.config.Bot.Name, l.config.Server.Addr)
	if err := registry.Register(serverComp); err != nil {
		return nil, fmt.Errorf("failed to register server component: %w", err)
	}

	if err := registry.InitializeAll(ctx); err != nil {
		return nil, fmt.Errorf("component initialization failed: %w", err)
	}

	l.logger.Info("All components initialized successfully", "order", registry.Order())

	appState := state.NewState(l.config, registry)
	if err := l.buildServices(ctx, appState, storageComp, platformComp); err != nil {
		appState.Close(ctx)
		return nil, err
	}

	serverComp.SetStatus(func() map[string]any {
		return map[string]any{
			"cache_entries": appState.Cache.Len(),
			"running":       appState.Bot.IsRunning(),
		}
	})

	return appState, nil
}

func (l *Loader) buildServices(ctx context.Context, appState *state.State, storageComp *components.StorageComponent, platformComp *components.PlatformComponent) error {
	cfg := l.config

	appState.Cache = dedup.New(ctx, storageComp.Store(), cfg.System.CacheExpiration(), dedup.WithLogger(l.logger))

	prompts, err := template.LoadPrompts(map[template.Prompt]string{
		template.ReviewPrompt:    cfg.Classifier.ReviewPromptPath,
		template.SentimentPrompt: cfg.Classifier.SentimentPromptPath,
		template.SummaryPrompt:   cfg.Classifier.SummaryPromptPath,
	})
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	interval := config.ParseDuration(cfg.Classifier.RateInterval, classifier.DefaultInterval)
	appState.Classifier = classifier.New(platformComp.Provider(), prompts,
		classifier.WithLimiter(rate.NewLimiter(rate.Every(interval), 1)),
		classifier.WithTemperature(cfg.Classifier.Temperature),
		classifier.WithLogger(l.logger.With("component", "classifier")),
	)

	appState.Sink = l.buildSink(platformComp)

	platformGroups, err := l.buildPlatforms(ctx, platformComp)
	if err != nil {
		return err
	}

	appState.Orchestrator = core.NewOrchestrator(core.OrchestratorConfig{
		Platforms:          platformGroups,
		Classifier:         appState.Classifier,
		Cache:              appState.Cache,
		Notifier:           appState.Sink,
		SentimentCharLimit: cfg.System.SentimentCharLimit,
		SummaryCharLimit:   cfg.System.SummaryCharLimit,
		Logger:             l.logger,
	})

	bot, err := core.NewBot(core.BotConfig{
		Name:             cfg.Bot.Name,
		Cycle:            appState.Orchestrator,
		Cleaner:          appState.Cache,
		Heartbeat:        appState.Sink,
		CheckInterval:    config.ParseDuration(cfg.Bot.CheckInterval, 3*time.Minute),
		CleanupInterval:  config.ParseDuration(cfg.Bot.CleanupInterval, time.Hour),
		HeartbeatAt:      cfg.Bot.HeartbeatAt,
		HeartbeatOnStart: cfg.Bot.HeartbeatOnStart == nil || *cfg.Bot.HeartbeatOnStart,
		RunOnce:          cfg.Bot.RunOnce,
		Logger:           l.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build bot: %w", err)
	}
	appState.Bot = bot

	return nil
}

func (l *Loader) buildSink(platformComp *components.PlatformComponent) *notify.Sink {
	sys := l.config.System

	var channel notify.Channel
	switch {
	case platformComp.Telegram() != nil:
		channel = notify.NewTelegramChannel(platformComp.Telegram())
	case platformComp.Discord() != nil:
		channel = notify.NewDiscordChannel(platformComp.Discord())
	}

	alerts, heartbeat := sys.Recipients()
	return notify.NewSink(channel, notify.SinkConfig{
		BotName:            l.config.Bot.Name,
		Enabled:            sys.ChannelEnabled() && channel != nil,
		ChatID:             alerts,
		HeartbeatRecipient: heartbeat,
		ParseMode:          notify.ParseMode(sys.ParseMode),
	}, l.logger.With("component", "notify"))
}

func (l *Loader) buildPlatforms(ctx context.Context, platformComp *components.PlatformComponent) ([]core.PlatformGroups, error) {
	names := make([]string, 0, len(l.config.Platforms))
	for name, p := range l.config.Platforms {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	result := make([]core.PlatformGroups, 0, len(names))
	for _, name := range names {
		platformCfg := l.config.Platforms[name]

		platform, err := l.createPlatform(ctx, name, platformCfg, platformComp)
		if err != nil {
			return nil, fmt.Errorf("failed to create platform %s: %w", name, err)
		}

		groups, err := BuildGroups(platformCfg.Groups)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", name, err)
		}
		if len(groups) == 0 {
			l.logger.Warn("Platform has no groups configured", "platform", name)
			continue
		}

		result = append(result, core.PlatformGroups{Platform: platform, Groups: groups})
	}

	return result, nil
}

func (l *Loader) createPlatform(ctx context.Context, name string, cfg config.PlatformConfig, platformComp *components.PlatformComponent) (sources.Platform, error) {
	logger := l.logger.With("platform", name)

	switch cfg.Type {
	case "reddit":
		secrets := l.config.Secrets
		return sources.NewReddit(sources.RedditConfig{
			Host:      cfg.Host,
			ClientID:  secrets.RedditClient,
			Secret:    secrets.RedditSecret,
			Username:  secrets.RedditUsername,
			Password:  secrets.RedditPassword,
			UserAgent: secrets.RedditUserAgent,
		}, logger), nil

	case "bluesky":
		bluesky := platformComp.Bluesky(name)
		if bluesky == nil {
			return nil, fmt.Errorf("bluesky platform %s was not initialized", name)
		}
		return sources.NewBluesky(bluesky.Client(), logger), nil

	case "rss":
		feeds, err := rssFeeds(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("RSS feeds configured", "count", len(feeds))
		return sources.NewRSS(feeds, logger), nil

	default:
		return nil, fmt.Errorf("unsupported platform type: %s", cfg.Type)
	}
}

func rssFeeds(ctx context.Context, cfg config.PlatformConfig) (map[string]string, error) {
	feeds := make(map[string]string, len(cfg.Feeds))
	if cfg.OPML != "" {
		fromOPML, err := sources.LoadOPML(ctx, cfg.OPML)
		if err != nil {
			return nil, err
		}
		for name, url := range fromOPML {
			feeds[name] = url
		}
	}
	for name, url := range cfg.Feeds {
		feeds[name] = url
	}

	if len(feeds) == 0 {
		return nil, fmt.Errorf("no feeds configured")
	}
	return feeds, nil
}

// BuildGroups turns validated group configs into pipeline groups. Threshold
// groups search a community; every other kind walks its author list.
func BuildGroups(configs []config.GroupConfig) ([]core.Group, error) {
	groups := make([]core.Group, 0, len(configs))
	for _, gc := range configs {
		policy, err := gating.FromConfig(gc)
		if err != nil {
			return nil, err
		}

		group := core.Group{
			Name:   gc.Name,
			Label:  gc.Label,
			Limit:  gc.Limit,
			Policy: policy,
		}

		if gc.Kind == config.KindThreshold {
			group.Search = &sources.SearchQuery{
				Community:  gc.Community,
				Flair:      gc.TargetFlair,
				Sort:       gc.Sort,
				TimeFilter: gc.TimeFilter,
				Limit:      gc.Limit,
			}
		} else {
			group.Authors = append([]string(nil), gc.Authors...)
			group.Window = config.ParseDuration(gc.Window, 7*24*time.Hour)
		}

		groups = append(groups, group)
	}
	return groups, nil
}

// OpenCache opens only the seen-item store, for maintenance commands that do
// not need network clients.
func OpenCache(ctx context.Context, cfg *config.Config) (*dedup.Cache, func(), error) {
	l := NewLoader(cfg)

	registry := components.NewRegistry()
	storageComp := l.storageComponent()
	if err := registry.Register(storageComp); err != nil {
		return nil, nil, err
	}
	if err := registry.InitializeAll(ctx); err != nil {
		return nil, nil, fmt.Errorf("component initialization failed: %w", err)
	}

	cache := dedup.New(ctx, storageComp.Store(), cfg.System.CacheExpiration(), dedup.WithLogger(l.logger))
	return cache, func() { registry.CloseAll(context.Background()) }, nil
}

func LoadAndBuild(ctx context.Context, configPath string) (*state.State, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	loader := NewLoader(cfg)
	return loader.Initialize(ctx)
}
