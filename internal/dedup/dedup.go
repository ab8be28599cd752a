// Package dedup remembers which item ids have already been handled.
//
// Mutations are serialized by the scheduler, which runs every job on one
// goroutine. The mutex only covers readers such as the health endpoint.
package dedup

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"watchtower/internal/metrics"
	"watchtower/internal/storage"
)

// SeenWindow is how long an added id counts as cached. It is independent of
// the cleanup expiration.
const SeenWindow = 24 * time.Hour

const DefaultExpiration = 48 * time.Hour

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

type Cache struct {
	mu         sync.Mutex
	store      storage.SeenStore
	entries    map[string]float64
	expiration time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// New loads the persisted mapping. A load failure is logged and leaves the
// cache empty.
func New(ctx context.Context, store storage.SeenStore, expiration time.Duration, opts ...Option) *Cache {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}

	c := &Cache{
		store:      store,
		entries:    map[string]float64{},
		expiration: expiration,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		c.logger.Error("Failed to load dedup cache, starting empty", "error", err)
	} else if entries != nil {
		c.entries = entries
	}

	c.logger.Info("Dedup cache loaded", "entries", len(c.entries), "expiration", c.expiration)
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return c
}

func (c *Cache) IsCached(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.entries[id]
	if !ok {
		return false
	}
	return c.age(ts) < SeenWindow
}

// Add records id as seen now and persists the whole mapping. The in-memory
// entry is kept even when the write fails.
func (c *Cache) Add(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = toUnix(c.now())
	metrics.CacheEntries.Set(float64(len(c.entries)))

	if err := c.store.Save(ctx, c.entries); err != nil {
		c.logger.Error("Failed to persist dedup cache", "item_id", id, "error", err)
		return err
	}
	return nil
}

// Cleanup drops entries older than the expiration and returns their ids.
func (c *Cache) Cleanup(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for id, ts := range c.entries {
		if c.age(ts) > c.expiration {
			removed = append(removed, id)
		}
	}

	if len(removed) == 0 {
		c.logger.Debug("Dedup cleanup removed nothing", "entries", len(c.entries))
		return nil, nil
	}

	sort.Strings(removed)
	for _, id := range removed {
		delete(c.entries, id)
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	c.logger.Info("Dedup cleanup removed expired entries", "count", len(removed), "ids", removed)

	if err := c.store.Save(ctx, c.entries); err != nil {
		c.logger.Error("Failed to persist dedup cache after cleanup", "error", err)
		return removed, err
	}
	return removed, nil
}

// Reset forgets every id and deletes the backing store.
func (c *Cache) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string]float64{}
	metrics.CacheEntries.Set(0)

	if err := c.store.Delete(ctx); err != nil {
		c.logger.Error("Failed to delete dedup store", "error", err)
		return err
	}
	c.logger.Info("Dedup cache reset")
	return nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) age(ts float64) time.Duration {
	return c.now().Sub(fromUnix(ts))
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
