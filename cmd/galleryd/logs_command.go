package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"galleryd/internal/logs"
)

const (
	daemonLogName = "galleryd.log"
	cliLogName    = "galleryd-cli.log"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow, cli bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := daemonLogName
			if cli {
				name = cliLogName
			}
			path := filepath.Join(cfg.Paths.LogDir, name)

			out := cmd.OutOrStdout()
			emit := func(line string) {
				if filter.Match(line) {
					fmt.Fprintln(out, line)
				}
			}

			result, err := logs.Tail(path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				emit(line)
			}
			if !follow {
				return nil
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return logs.Follow(signalCtx, path, result.Offset, emit)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&cli, "cli", false, "Show the CLI log instead of the daemon log")
	cmd.Flags().Int64Var(&filter.GalleryID, "gallery", 0, "Only lines for this gallery id")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only lines from this component")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Case-insensitive substring match")
	return cmd
}
