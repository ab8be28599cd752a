package cache

import (
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const DefaultTTL = 10 * time.Minute

// Cache is a typed view over go-cache. Failed loads are never stored.
type Cache[K comparable, V any] struct {
	cache       *gocache.Cache
	keyToString func(K) string
	name        string
}

type CacheConfig struct {
	Name string
	TTL  time.Duration
}

func NewCache[K comparable, V any](config CacheConfig, keyToString func(K) string) *Cache[K, V] {
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}

	slog.Debug("Cache initialized", "name", config.Name, "ttl", config.TTL)

	return &Cache[K, V]{
		cache:       gocache.New(config.TTL, config.TTL/2),
		keyToString: keyToString,
		name:        config.Name,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	value, found := c.cache.Get(c.keyToString(key))
	if !found {
		var zero V
		return zero, false
	}

	typed, ok := value.(V)
	return typed, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.cache.Set(c.keyToString(key), value, gocache.DefaultExpiration)
}

// GetOrLoad returns the cached value for key, calling load on a miss.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	c.Set(key, value)
	slog.Debug("Cache stored value", "name", c.name, "key", c.keyToString(key))
	return value, nil
}

func (c *Cache[K, V]) Len() int {
	return c.cache.ItemCount()
}
