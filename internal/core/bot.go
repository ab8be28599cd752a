package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type CycleRunner interface {
	RunCycle(ctx context.Context)
}

type CacheCleaner interface {
	Cleanup(ctx context.Context) ([]string, error)
}

type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

type BotConfig struct {
	Name             string
	Cycle            CycleRunner
	Cleaner          CacheCleaner
	Heartbeat        Heartbeater
	CheckInterval    time.Duration
	CleanupInterval  time.Duration
	HeartbeatAt      string
	HeartbeatOnStart bool
	RunOnce          bool
	Now              func() time.Time
	Logger           *slog.Logger
}

// Bot schedules check cycles, cache cleanup and the daily heartbeat from a
// single goroutine, so no two jobs ever touch the dedup cache at once.
type Bot struct {
	name             string
	cycle            CycleRunner
	cleaner          CacheCleaner
	heartbeat        Heartbeater
	checkInterval    time.Duration
	cleanupInterval  time.Duration
	heartbeatHour    int
	heartbeatMinute  int
	heartbeatOnStart bool
	runOnce          bool
	now              func() time.Time
	logger           *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewBot(config BotConfig) (*Bot, error) {
	if config.CheckInterval == 0 {
		config.CheckInterval = 3 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Hour
	}
	if config.HeartbeatAt == "" {
		config.HeartbeatAt = "12:00"
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	at, err := time.Parse("15:04", config.HeartbeatAt)
	if err != nil {
		return nil, fmt.Errorf("invalid heartbeat_at %q: %w", config.HeartbeatAt, err)
	}

	return &Bot{
		name:             config.Name,
		cycle:            config.Cycle,
		cleaner:          config.Cleaner,
		heartbeat:        config.Heartbeat,
		checkInterval:    config.CheckInterval,
		cleanupInterval:  config.CleanupInterval,
		heartbeatHour:    at.Hour(),
		heartbeatMinute:  at.Minute(),
		heartbeatOnStart: config.HeartbeatOnStart,
		runOnce:          config.RunOnce,
		now:              config.Now,
		logger:           config.Logger,
		stopCh:           make(chan struct{}),
	}, nil
}

func (b *Bot) Name() string {
	return b.name
}

// Start blocks until ctx is cancelled or Stop is called. In run-once mode it
// returns after a single cycle.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot already running")
	}
	b.running = true
	b.mu.Unlock()
	defer b.markStopped()

	b.logger.Info("Bot started",
		"name", b.name,
		"check_interval", b.checkInterval,
		"cleanup_interval", b.cleanupInterval,
		"heartbeat_at", fmt.Sprintf("%02d:%02d UTC", b.heartbeatHour, b.heartbeatMinute),
		"run_once", b.runOnce,
	)

	if b.heartbeatOnStart {
		b.sendHeartbeat(ctx)
	}
	b.runCycle(ctx)

	if b.runOnce {
		return nil
	}

	return b.loop(ctx)
}

func (b *Bot) loop(ctx context.Context) error {
	checkTicker := time.NewTicker(b.checkInterval)
	defer checkTicker.Stop()

	cleanupTicker := time.NewTicker(b.cleanupInterval)
	defer cleanupTicker.Stop()

	heartbeatTimer := time.NewTimer(b.untilNextHeartbeat())
	defer heartbeatTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bot stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-b.stopCh:
			b.logger.Info("Bot stopped")
			return nil
		case <-checkTicker.C:
			b.runCycle(ctx)
		case <-cleanupTicker.C:
			b.runCleanup(ctx)
		case <-heartbeatTimer.C:
			b.sendHeartbeat(ctx)
			heartbeatTimer.Reset(b.untilNextHeartbeat())
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}

	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
	return nil
}

func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) runCycle(ctx context.Context) {
	if b.cycle != nil {
		b.cycle.RunCycle(ctx)
	}
}

func (b *Bot) runCleanup(ctx context.Context) {
	if b.cleaner == nil {
		return
	}
	if _, err := b.cleaner.Cleanup(ctx); err != nil {
		b.logger.Error("Cache cleanup failed", "error", err)
	}
}

func (b *Bot) sendHeartbeat(ctx context.Context) {
	if b.heartbeat == nil {
		return
	}
	// the sink already logs delivery failures
	_ = b.heartbeat.Heartbeat(ctx)
}

func (b *Bot) untilNextHeartbeat() time.Duration {
	now := b.now()
	return NextHeartbeat(now, b.heartbeatHour, b.heartbeatMinute).Sub(now)
}

// NextHeartbeat returns the first hour:minute UTC strictly after now.
func NextHeartbeat(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (b *Bot) markStopped() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}
