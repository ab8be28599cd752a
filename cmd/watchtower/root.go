package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"watchtower/internal/config"
	"watchtower/internal/logging"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "watchtower",
		Short: "Watch social feeds and forward classified posts",
		Long: `watchtower polls Reddit, Bluesky and RSS for new posts from tracked
authors and communities, gates them with an LLM classifier and forwards the
ones that pass to Telegram or Discord.

Example usage:
  watchtower run                      # poll forever
  watchtower once                     # a single check cycle
  watchtower cleanup                  # expire old cache entries
  watchtower reset-cache              # forget every seen item
  watchtower heartbeat                # send a liveness message`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.toml", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with secrets, ignored when missing")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newRunCmd(opts),
		newOnceCmd(opts),
		newCleanupCmd(opts),
		newResetCacheCmd(opts),
		newHeartbeatCmd(opts),
	)

	return cmd
}

// init loads secrets, config and logging, in that order, since config
// parsing reads secrets from the environment.
func (o *rootOptions) init() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Log, nil)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	o.cfg = cfg
	o.logger = logger
	logger.Debug("Configuration loaded", "path", o.configPath)
	return nil
}
