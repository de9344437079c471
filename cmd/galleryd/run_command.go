package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"galleryd/internal/daemon"
	"galleryd/internal/logging"
	"galleryd/internal/queue"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the download daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := queue.Open(cfg)
			if err != nil {
				logger.Error("open queue store", logging.Error(err))
				return err
			}
			defer store.Close()

			d, err := daemon.New(signalCtx, cfg, store, logger, daemon.Options{})
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}
			if err := d.Run(signalCtx); err != nil {
				logger.Error("daemon stopped with error", logging.Error(err))
				return err
			}
			logger.Info("galleryd daemon shutting down")
			return nil
		},
	}
}
