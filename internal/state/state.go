package state

import (
	"context"

	"watchtower/internal/classifier"
	"watchtower/internal/components"
	"watchtower/internal/config"
	"watchtower/internal/core"
	"watchtower/internal/dedup"
	"watchtower/internal/notify"
)

// State is the wired service graph for one process.
type State struct {
	Config       *config.Config
	Registry     *components.Registry
	Cache        *dedup.Cache
	Classifier   *classifier.Classifier
	Sink         *notify.Sink
	Orchestrator *core.Orchestrator
	Bot          *core.Bot
}

func NewState(cfg *config.Config, registry *components.Registry) *State {
	return &State{
		Config:   cfg,
		Registry: registry,
	}
}

// Close shuts components down in reverse initialization order.
func (s *State) Close(ctx context.Context) error {
	if s.Registry == nil {
		return nil
	}
	return s.Registry.CloseAll(ctx)
}
