package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"galleryd/internal/api"
	"galleryd/internal/export"
	"galleryd/internal/notifications"
	"galleryd/internal/queue"
)

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return newDaemonActionCommand(ctx, "pause <id>...", "Hold queued downloads on the daemon", (*api.Client).Pause)
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return newDaemonActionCommand(ctx, "resume <id>...", "Release held downloads on the daemon", (*api.Client).Resume)
}

// newDaemonActionCommand builds a command for per-id actions that only make
// sense against the daemon's in-memory queue.
func newDaemonActionCommand(
	ctx *commandContext,
	use, short string,
	action func(*api.Client, context.Context, int64) (*api.DownloadResponse, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				resp, err := action(client, cmd.Context(), id)
				if errors.Is(err, api.ErrUnavailable) {
					return fmt.Errorf("daemon is not running: %w", err)
				}
				if err != nil {
					return fmt.Errorf("gallery %d: %w", id, err)
				}
				fmt.Fprintf(out, "Gallery %d %s\n", resp.ID, resp.Result)
			}
			return nil
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <id>",
		Short: "Archive a completed gallery as a ZIP in the export bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Export(cmd.Context(), id)
			if err == nil {
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Export of gallery %d scheduled as %s\n", id, resp.Job)
				return nil
			}
			if !errors.Is(err, api.ErrUnavailable) {
				return err
			}
			return exportInProcess(cmd, ctx, id)
		},
	}
}

func exportInProcess(cmd *cobra.Command, ctx *commandContext, id int64) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.fileLogger()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	notifier := notifications.NewService(cfg, logger)
	if !ctx.jsonOutput() {
		notifier = notifications.Multi(notifications.NewTerminal(out), notifier)
	}
	exporter, err := export.Open(cmd.Context(), cfg, store, notifier, logger)
	if err != nil {
		return err
	}
	defer exporter.Close()

	result, err := exporter.Export(cmd.Context(), id)
	if err != nil {
		return err
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, result)
	}
	fmt.Fprintf(out, "%d pages, %s\n", result.Pages, formatBytes(result.Bytes))
	return nil
}
