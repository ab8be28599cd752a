package storage

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("storage: closed")

// SeenStore persists the dedup mapping of item id to first-seen time
// (unix seconds). Save always writes the complete mapping.
type SeenStore interface {
	Load(ctx context.Context) (map[string]float64, error)
	Save(ctx context.Context, entries map[string]float64) error
	Delete(ctx context.Context) error
	Close() error
}

type Options struct {
	Path      string
	RedisAddr string
	RedisKey  string
}
