// Package redis keeps the seen-item mapping in a single Redis hash. Save
// replaces the whole hash, so one watcher instance owns one key.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"watchtower/internal/storage"
)

const DefaultKey = "watchtower:seen"

func init() {
	storage.RegisterFactory("redis", func(opts storage.Options) (storage.SeenStore, error) {
		return New(opts.RedisAddr, opts.RedisKey)
	})
}

type Store struct {
	client *goredis.Client
	key    string
}

func New(addr, key string) (*Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis: address is required")
	}
	if key == "" {
		key = DefaultKey
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	slog.Info("Initialized Redis storage", "addr", addr, "key", key)
	return &Store{client: client, key: key}, nil
}

func (s *Store) Load(ctx context.Context) (map[string]float64, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}

	entries := make(map[string]float64, len(raw))
	for id, value := range raw {
		ts, err := strconv.ParseFloat(value, 64)
		if err != nil {
			slog.Warn("Skipping malformed seen entry", "key", s.key, "item_id", id, "value", value)
			continue
		}
		entries[id] = ts
	}
	return entries, nil
}

func (s *Store) Save(ctx context.Context, entries map[string]float64) error {
	values := make(map[string]interface{}, len(entries))
	for id, ts := range entries {
		values[id] = strconv.FormatFloat(ts, 'f', -1, 64)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
