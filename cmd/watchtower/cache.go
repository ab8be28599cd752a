package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"watchtower/internal/loader"
)

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries from the seen-item cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, closeFn, err := loader.OpenCache(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			removed, err := cache.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries, %d remain\n", len(removed), cache.Len())
			return nil
		},
	}
}

func newResetCacheCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset-cache",
		Short: "Delete every entry from the seen-item cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset-cache forgets every seen item and may cause duplicate alerts; pass --yes to confirm")
			}

			cache, closeFn, err := loader.OpenCache(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := cache.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache reset")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}
