package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"watchtower/internal/loader"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), opts)
		},
	}
}

func newOnceCmd(opts *rootOptions) *cobra.Command {
	var heartbeat bool

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single check cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.cfg.Bot.RunOnce = true
			opts.cfg.Bot.HeartbeatOnStart = &heartbeat
			return runBot(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&heartbeat, "heartbeat", false, "send the heartbeat before the cycle")
	return cmd
}

func runBot(ctx context.Context, opts *rootOptions) error {
	logger := opts.logger

	appState, err := loader.NewLoader(opts.cfg).Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		appState.Close(shutdownCtx)
	}()

	logger.Info("Starting bot", "name", appState.Bot.Name())

	if err := appState.Bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Bot stopped successfully")
	return nil
}
