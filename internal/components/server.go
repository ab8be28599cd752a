package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"watchtower/internal/server"
)

// ServerComponent serves /metrics and /healthz when an address is configured.
type ServerComponent struct {
	name   string
	addr   string
	server *server.Server

	mu     sync.RWMutex
	status func() map[string]any
}

func NewServerComponent(name, addr string) *ServerComponent {
	return &ServerComponent{
		name: name,
		addr: addr,
	}
}

func (c *ServerComponent) Name() string {
	return ServerComponentName
}

func (c *ServerComponent) Dependencies() []string {
	return []string{StorageComponentName}
}

// SetStatus registers extra health fields. It may be called after the server
// is up, once the services it reports on exist.
func (c *ServerComponent) SetStatus(fn func() map[string]any) {
	c.mu.Lock()
	c.status = fn
	c.mu.Unlock()
}

func (c *ServerComponent) Validate() error {
	return nil
}

func (c *ServerComponent) Initialize(ctx context.Context) error {
	if c.addr == "" {
		slog.Debug("Metrics server disabled")
		return nil
	}

	srv := server.New(c.name, server.Config{
		Addr:   c.addr,
		Status: c.statusFields,
	}, slog.Default())

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("servers: failed to start metrics server: %w", err)
	}

	c.server = srv
	return nil
}

func (c *ServerComponent) statusFields() map[string]any {
	c.mu.RLock()
	fn := c.status
	c.mu.RUnlock()

	if fn == nil {
		return nil
	}
	return fn()
}

func (c *ServerComponent) Close(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

func (c *ServerComponent) Server() *server.Server {
	return c.server
}
