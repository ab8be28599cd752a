package components

import (
	"context"
	"fmt"

	"watchtower/internal/storage"
)

// StorageComponent opens the seen-item store for the configured backend.
// Backends register themselves, so the binary must import them.
type StorageComponent struct {
	backend string
	opts    storage.Options
	store   storage.SeenStore
}

func NewStorageComponent(backend string, opts storage.Options) *StorageComponent {
	return &StorageComponent{
		backend: backend,
		opts:    opts,
	}
}

func (c *StorageComponent) Name() string {
	return StorageComponentName
}

func (c *StorageComponent) Dependencies() []string {
	return []string{}
}

func (c *StorageComponent) Validate() error {
	switch c.backend {
	case "", "json", "sqlite":
		if c.opts.Path == "" {
			return fmt.Errorf("storage: cache file path is required")
		}
	case "redis":
		if c.opts.RedisAddr == "" {
			return fmt.Errorf("storage: redis address is required")
		}
	}
	return nil
}

func (c *StorageComponent) Initialize(ctx context.Context) error {
	store, err := storage.New(c.backend, c.opts)
	if err != nil {
		return fmt.Errorf("storage: failed to initialize store: %w", err)
	}

	c.store = store
	return nil
}

func (c *StorageComponent) Close(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *StorageComponent) Store() storage.SeenStore {
	return c.store
}
