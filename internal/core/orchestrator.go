package core

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"watchtower/internal/classifier"
	"watchtower/internal/gating"
	"watchtower/internal/metrics"
	"watchtower/internal/notify"
	"watchtower/internal/sources"
	"watchtower/internal/types"
)

type Classifier interface {
	gating.Classifier
	Summarize(ctx context.Context, text string, charLimit int) (string, error)
}

type SeenCache interface {
	IsCached(id string) bool
	Add(ctx context.Context, id string) error
}

type Notifier interface {
	Notify(ctx context.Context, alert notify.Alert) error
}

// Group is one configured source group: either a set of authors or a single
// community search, sharing one gating policy.
type Group struct {
	Name    string
	Label   string
	Authors []string
	Limit   int
	// Window drops author-feed items older than this. Zero keeps everything.
	Window time.Duration
	// Search is set for community search groups.
	Search *sources.SearchQuery
	Policy gating.Policy
}

func (g Group) label() string {
	if g.Label != "" {
		return g.Label
	}
	return g.Name
}

type PlatformGroups struct {
	Platform sources.Platform
	Groups   []Group
}

type OrchestratorConfig struct {
	Platforms          []PlatformGroups
	Classifier         Classifier
	Cache              SeenCache
	Notifier           Notifier
	SentimentCharLimit int
	SummaryCharLimit   int
	Now                func() time.Time
	Logger             *slog.Logger
}

// Orchestrator runs check cycles. It is not safe for concurrent use; the
// scheduler never overlaps cycles.
type Orchestrator struct {
	platforms          []PlatformGroups
	classifier         Classifier
	cache              SeenCache
	notifier           Notifier
	sentimentCharLimit int
	summaryCharLimit   int
	now                func() time.Time
	logger             *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	platforms := append([]PlatformGroups(nil), cfg.Platforms...)
	sort.SliceStable(platforms, func(i, j int) bool {
		return platforms[i].Platform.Name() < platforms[j].Platform.Name()
	})

	return &Orchestrator{
		platforms:          platforms,
		classifier:         cfg.Classifier,
		cache:              cfg.Cache,
		notifier:           cfg.Notifier,
		sentimentCharLimit: cfg.SentimentCharLimit,
		summaryCharLimit:   cfg.SummaryCharLimit,
		now:                cfg.Now,
		logger:             cfg.Logger,
	}
}

// RunCycle processes every group of every platform once. Failures are logged
// and never stop the remaining groups.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	o.logger.Info("Starting check cycle", "platforms", len(o.platforms))

	for _, pg := range o.platforms {
		for _, group := range pg.Groups {
			if ctx.Err() != nil {
				o.logger.Warn("Check cycle interrupted", "error", ctx.Err())
				return
			}
			o.runGroup(ctx, pg.Platform, group)
		}
	}

	o.logger.Info("Check cycle finished", "duration", time.Since(start))
}

func (o *Orchestrator) runGroup(ctx context.Context, platform sources.Platform, group Group) {
	logger := o.logger.With("platform", platform.Name(), "group", group.Name)
	logger.Info("Processing group", "kind", group.Policy.Kind.String(), "cache_on", group.Policy.Cache.String())

	if group.Search != nil {
		items, err := platform.Search(ctx, *group.Search)
		if err != nil {
			o.logFetchError(logger, platform, group.Search.Community, err)
			return
		}
		o.processItems(ctx, platform, group, items, logger)
		return
	}

	for _, author := range group.Authors {
		if ctx.Err() != nil {
			return
		}

		items, err := platform.FetchRecentByAuthor(ctx, author, group.Limit)
		if err != nil {
			o.logFetchError(logger, platform, author, err)
			continue
		}
		o.processItems(ctx, platform, group, o.withinWindow(items, group.Window), logger)
	}
}

func (o *Orchestrator) withinWindow(items []types.ContentItem, window time.Duration) []types.ContentItem {
	if window <= 0 {
		return items
	}

	cutoff := o.now().Add(-window)
	kept := items[:0:0]
	for _, item := range items {
		if item.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func (o *Orchestrator) logFetchError(logger *slog.Logger, platform sources.Platform, subject string, err error) {
	if types.IsNotFound(err) {
		metrics.FetchErrors.WithLabelValues(platform.Name(), types.NotFound.String()).Inc()
		logger.Warn("Source not found, skipping", "subject", subject, "error", err)
		return
	}
	metrics.FetchErrors.WithLabelValues(platform.Name(), types.Transient.String()).Inc()
	logger.Error("Failed to fetch source", "subject", subject, "error", err)
}

func (o *Orchestrator) processItems(ctx context.Context, platform sources.Platform, group Group, items []types.ContentItem, logger *slog.Logger) {
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		outcome := o.processItem(ctx, platform, group, &items[i], logger)
		metrics.ItemsProcessed.WithLabelValues(platform.Name(), group.Name, outcome).Inc()
	}
}

// processItem walks one item through dedup, gating and notification and
// returns the terminal outcome.
func (o *Orchestrator) processItem(ctx context.Context, platform sources.Platform, group Group, item *types.ContentItem, logger *slog.Logger) string {
	logger = logger.With("item_id", item.ID, "author", item.Author)

	if o.cache.IsCached(item.ID) {
		logger.Debug("Skipping cached item")
		return metrics.OutcomeSkipped
	}

	if group.Policy.Cache == gating.CacheOnSight {
		// the cache logs persistence failures and keeps the entry in memory
		_ = o.cache.Add(ctx, item.ID)
	}

	decision := group.Policy.Evaluate(ctx, o.classifier, item)
	if !decision.Accepted {
		logger.Info("Item rejected", "reason", decision.Reason)
		return metrics.OutcomeRejected
	}

	if group.Policy.Cache == gating.CacheOnAccept {
		_ = o.cache.Add(ctx, item.ID)
	}

	text := item.Text()

	var sentiment classifier.Sentiment
	if decision.Sentiment != nil {
		sentiment = *decision.Sentiment
	} else {
		sentiment, _ = o.classifier.Sentiment(ctx, text, o.sentimentCharLimit)
	}
	summary, _ := o.classifier.Summarize(ctx, text, o.summaryCharLimit)

	alert := notify.Alert{
		Label:       group.label(),
		User:        item.Author,
		SocialScore: item.AuthorScore,
		ScoreUnit:   item.ScoreUnit,
		CreatedAt:   item.CreatedAt,
		Permalink:   platform.BuildPermalink(item),
		Sentiment:   sentiment,
		Summary:     summary,
	}

	if err := o.notifier.Notify(ctx, alert); err != nil {
		if errors.Is(err, notify.ErrDisabled) {
			return metrics.OutcomeDisabled
		}
		return metrics.OutcomeFailed
	}

	logger.Info("Item forwarded", "sentiment", sentiment.Score, "direction", string(sentiment.Direction))
	return metrics.OutcomeNotified
}
