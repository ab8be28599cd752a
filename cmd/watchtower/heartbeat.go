package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"watchtower/internal/loader"
)

func newHeartbeatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Send the liveness message once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appState, err := loader.NewLoader(opts.cfg).Initialize(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				appState.Close(ctx)
			}()

			return appState.Sink.Heartbeat(cmd.Context())
		},
	}
}
