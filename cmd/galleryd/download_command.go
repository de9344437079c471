package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"galleryd/internal/api"
	"galleryd/internal/config"
	"galleryd/internal/downloads"
	"galleryd/internal/gallery"
	"galleryd/internal/notifications"
	"galleryd/internal/queue"
	"galleryd/internal/remote"
	"galleryd/internal/scheduler"
	"galleryd/internal/services"
	"galleryd/internal/workflow"
)

const maxForegroundAttempts = 5

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var start, end int
	var title string
	var foreground bool

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Queue a gallery download",
		Long: "Queue a gallery download on the running daemon. Without a daemon, or with\n" +
			"--foreground, the download runs in this process with a progress bar.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			req := api.DownloadRequest{ID: ids[0], Title: title, Start: start, End: end}
			if err := api.Validate(req); err != nil {
				return err
			}

			if !foreground {
				client, err := ctx.apiClient()
				if err != nil {
					return err
				}
				resp, err := client.Download(cmd.Context(), req)
				if err == nil {
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Gallery %d %s\n", resp.ID, resp.Result)
					return nil
				}
				if !errors.Is(err, api.ErrUnavailable) {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Daemon not running; downloading in the foreground")
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.fileLogger()
			if err != nil {
				return err
			}
			return runForeground(signalCtx, cmd.OutOrStdout(), cfg, logger, downloads.Request{
				ID:    req.ID,
				Title: req.Title,
				Range: gallery.Range{Start: req.Start, End: req.End},
			})
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "First page to download (1-based)")
	cmd.Flags().IntVar(&end, "end", 0, "Last page to download (inclusive)")
	cmd.Flags().StringVar(&title, "title", "", "Display title until metadata resolves")
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Download in this process instead of the daemon")
	return cmd
}

// runForeground drives one gallery to a terminal state in process. It takes
// the daemon lock so the two never write the same folders.
func runForeground(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, req downloads.Request) error {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("a galleryd daemon holds the lock; queue the download through it instead")
	}
	defer lock.Unlock()

	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg, logger)
	if isTerminal(out) {
		notifier = notifications.Multi(notifications.NewTerminal(out), notifier)
	}
	q := downloads.NewQueue(downloads.Deps{
		Store:    store,
		Fetcher:  remote.New(cfg, logger),
		Notifier: notifier,
		Root:     cfg.Paths.DownloadDir,
		Logger:   logger,
	})
	worker := workflow.NewWorker(cfg, store, q, logger)
	if _, err := worker.Enqueue(ctx, req); err != nil {
		return err
	}
	d, ok := q.Get(req.ID)
	if !ok {
		return fmt.Errorf("gallery %d is already downloading", req.ID)
	}

	for attempt := 1; ; attempt++ {
		err := d.DownloadGalleryData(ctx)
		if err == nil {
			err = d.Download(ctx)
		}
		if d.Status().IsTerminal() {
			break
		}
		if err != nil && !services.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= maxForegroundAttempts {
			return fmt.Errorf("gallery %d parked after %d attempts; retry later: %w", req.ID, attempt, err)
		}
		wait := scheduler.Backoff(cfg.BackoffBase(), cfg.BackoffMax(), attempt)
		fmt.Fprintf(out, "Gallery %d interrupted; retrying in %s\n", req.ID, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	entry := d.Entry()
	if entry.Status == queue.StatusFailed {
		return fmt.Errorf("gallery %d failed: %s", entry.ID, entry.ErrorMessage)
	}
	fmt.Fprintf(out, "Downloaded gallery %d (%d pages, %s) to %s\n",
		entry.ID,
		entry.PagesDownloaded,
		formatBytes(entry.BytesDownloaded),
		d.Folder().Dir(),
	)
	return nil
}
