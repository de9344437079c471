package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"galleryd/internal/api"
	"galleryd/internal/config"
	"galleryd/internal/downloads"
	"galleryd/internal/export"
	"galleryd/internal/gallery"
	"galleryd/internal/logging"
	"galleryd/internal/notifications"
	"galleryd/internal/pagefetch"
	"galleryd/internal/preflight"
	"galleryd/internal/queue"
	"galleryd/internal/remote"
	"galleryd/internal/render"
	"galleryd/internal/scheduler"
	"galleryd/internal/services"
	"galleryd/internal/staging"
	"galleryd/internal/workflow"
)

// partialMaxAge keeps temp files young enough to belong to a foreground CLI
// write that raced the lock.
const partialMaxAge = time.Minute

// Options inject collaborators. Zero values build the production ones from
// the config.
type Options struct {
	Fetcher   remote.Fetcher
	Notifier  notifications.Service
	Scheduler scheduler.Options
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	notifier notifications.Service

	queue     *downloads.Queue
	worker    *workflow.Worker
	token     *workflow.Token
	backfill  *workflow.Backfill
	scheduler *scheduler.Scheduler
	pages     *pagefetch.Queue
	loader    *pagefetch.Loader
	exporter  *export.Exporter
	monitor   *netlinkMonitor

	lock    *flock.Flock
	running atomic.Bool
}

// New constructs a daemon and registers its scheduler jobs. Nothing runs until
// Start.
func New(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = remote.New(cfg, logger)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg, logger)
	}

	exporter, err := export.Open(ctx, cfg, store, notifier, logger)
	if err != nil {
		return nil, err
	}

	q := downloads.NewQueue(downloads.Deps{
		Store:    store,
		Fetcher:  fetcher,
		Notifier: notifier,
		Root:     cfg.Paths.DownloadDir,
		Logger:   logger,
	})
	pages := pagefetch.NewQueue()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		notifier:  notifier,
		queue:     q,
		worker:    workflow.NewWorker(cfg, store, q, logger),
		token:     workflow.NewToken(),
		backfill:  workflow.NewBackfill(cfg.Paths.DownloadDir, store, fetcher, logger),
		scheduler: scheduler.New(cfg, logger, opts.Scheduler),
		pages:     pages,
		loader:    pagefetch.NewLoader(cfg, pages, fetcher, logger),
		exporter:  exporter,
		lock:      flock.New(cfg.LockPath()),
	}
	d.monitor = newNetlinkMonitor(cfg, logger, d.networkChanged)

	for _, job := range []scheduler.Job{d.worker.Job(d.token), d.backfill.Job()} {
		if err := d.scheduler.Register(job); err != nil {
			d.closeServices()
			return nil, err
		}
	}
	d.worker.SetTrigger(func() bool { return d.scheduler.Trigger(workflow.JobDownload) })
	return d, nil
}

// Start acquires the instance lock, rolls back rows a crash left in flight
// and kicks off the first download and backfill runs.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another galleryd instance is already running")
	}

	reset, err := d.store.ResetInFlight(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset in-flight rows: %w", err)
	}
	swept := staging.CleanPartials(ctx, d.cfg.Paths.DownloadDir, partialMaxAge, d.logger)
	d.running.Store(true)
	d.logger.Info("galleryd daemon started",
		logging.String("lock", d.cfg.LockPath()),
		logging.Int64("reset_rows", reset),
		logging.Int("partials_removed", len(swept.Removed)),
	)
	d.logPreflight(ctx)
	d.scheduler.Trigger(workflow.JobDownload)
	d.scheduler.Trigger(workflow.JobBackfill)
	return nil
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, check := range preflight.Failed(preflight.RunAll(ctx, d.cfg, d.store)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "downloads or exports may fail until this is fixed"),
		)
	}
}

// Run serves the HTTP API, the wake ticker and the netlink monitor until ctx
// is cancelled or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	server, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.serve(gctx) })
	g.Go(func() error { return d.wakeLoop(gctx) })
	g.Go(func() error { return d.monitor.Run(gctx) })
	return g.Wait()
}

// wakeLoop re-triggers the download job periodically so rows added to the
// store out of band get picked up.
func (d *Daemon) wakeLoop(ctx context.Context) error {
	interval := time.Duration(d.cfg.Scheduler.WakeInterval) * time.Second
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.scheduler.Trigger(workflow.JobDownload)
		}
	}
}

func (d *Daemon) networkChanged(string) {
	d.scheduler.Kick()
	d.scheduler.Trigger(workflow.JobDownload)
}

// Stop halts background work and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.scheduler.Close()
	d.pages.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("galleryd daemon stopped")
}

// Close stops the daemon and releases every resource it opened. The store
// belongs to the caller.
func (d *Daemon) Close() error {
	d.Stop()
	return d.closeServices()
}

func (d *Daemon) closeServices() error {
	d.scheduler.Close()
	d.pages.Close()
	return d.exporter.Close()
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return api.DaemonStatus{}, services.Wrap(services.ErrTransient, "status", "queue stats", "", err)
	}
	jobs := d.scheduler.Status()
	out := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.cfg.LockPath(),
		DownloadDir:  d.cfg.Paths.DownloadDir,
		QueueStats:   api.MergeQueueStats(stats),
		InMemory:     d.queue.Len(),
		Jobs:         make([]api.JobStatus, 0, len(jobs)),
	}
	if cache := d.loader.Cache(); cache != nil {
		cs, err := cache.Stats()
		if err != nil {
			logging.WarnWithContext(d.logger, "page cache stats failed", "page_cache_stats_failed", logging.Error(err))
		} else {
			out.PageCache = &api.PageCache{Entries: cs.Entries, Bytes: cs.TotalBytes, Limit: cs.MaxBytes}
		}
	}
	for _, job := range jobs {
		out.Jobs = append(out.Jobs, api.JobStatus{
			Name:       job.Name,
			State:      string(job.State),
			Attempts:   job.Attempts,
			LastResult: job.LastResult,
			LastRun:    formatJobTime(job.LastRun),
			NextRun:    formatJobTime(job.NextRun),
		})
	}
	return out, nil
}

func formatJobTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Enqueue adds a download request and wakes the worker.
func (d *Daemon) Enqueue(ctx context.Context, req downloads.Request) (downloads.AddResult, error) {
	return d.worker.Enqueue(ctx, req)
}

// Prefetch resolves metadata for queued galleries outside the download token.
func (d *Daemon) Prefetch(ctx context.Context) (int, error) {
	return d.worker.Prefetch(ctx)
}

// Retry re-queues a failed gallery.
func (d *Daemon) Retry(ctx context.Context, id int64) (downloads.AddResult, error) {
	return d.worker.Retry(ctx, id)
}

// Remove cancels id in memory and deletes its row. The files on disk stay.
func (d *Daemon) Remove(ctx context.Context, id int64) (int64, error) {
	queued := d.queue.Remove(id)
	if err := d.loader.Cache().Evict(id); err != nil {
		d.logger.Warn("page cache evict failed", logging.GalleryID(id), logging.Error(err))
	}
	deleted, err := d.store.Delete(ctx, id)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "remove", "delete row", fmt.Sprintf("gallery %d", id), err)
	}
	if !queued && !deleted {
		return 0, services.Wrap(services.ErrNotFound, "remove", "lookup", fmt.Sprintf("gallery %d", id), nil)
	}
	return 1, nil
}

// Clear removes finished rows. Scope "all" also cancels queued downloads.
func (d *Daemon) Clear(ctx context.Context, scope string) (int64, error) {
	switch scope {
	case "completed":
		return d.store.ClearCompleted(ctx)
	case "failed":
		return d.store.ClearFailed(ctx)
	case "all":
		d.queue.Clear()
		return d.store.Clear(ctx)
	default:
		return 0, services.Wrap(services.ErrValidation, "clear", "scope", fmt.Sprintf("unknown scope %q", scope), nil)
	}
}

// Pause holds a queued download.
func (d *Daemon) Pause(id int64) error {
	if !d.queue.Pause(id) {
		return services.Wrap(services.ErrNotFound, "pause", "lookup", fmt.Sprintf("gallery %d is not queued", id), nil)
	}
	return nil
}

// Resume releases a held download and wakes the worker.
func (d *Daemon) Resume(id int64) error {
	if !d.queue.Resume(id) {
		return services.Wrap(services.ErrNotFound, "resume", "lookup", fmt.Sprintf("gallery %d is not queued", id), nil)
	}
	d.scheduler.Trigger(workflow.JobDownload)
	return nil
}

// Export checks that id is completed and schedules its archive job. It
// returns the job name.
func (d *Daemon) Export(ctx context.Context, id int64) (string, error) {
	row, err := d.store.GetByID(ctx, id)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "export", "load row", fmt.Sprintf("gallery %d", id), err)
	}
	if row == nil {
		return "", services.Wrap(services.ErrNotFound, "export", "load row", fmt.Sprintf("gallery %d", id), nil)
	}
	if row.Status != queue.StatusCompleted {
		return "", services.Wrap(services.ErrValidation, "export", "check status", fmt.Sprintf("gallery %d is %s", id, row.Status), nil)
	}
	job := d.exporter.Job(id)
	if !d.scheduler.Submit(job) {
		return "", services.Wrap(services.ErrTransient, "export", "submit", "scheduler is closed", nil)
	}
	return job.Name, nil
}

// Page loads one page for display. Metadata comes from the in-memory queue
// first, then from the store row.
func (d *Daemon) Page(ctx context.Context, id int64, page int, opts render.Options) (render.Output, error) {
	req := pagefetch.PageRequest{GalleryID: id, Page: page, Options: opts}
	if dl, ok := d.queue.Get(id); ok {
		if meta, resolved := dl.Metadata(); resolved {
			req.MediaID = meta.MediaID
			req.Hint = meta.ExtensionFor(page)
		}
	}
	if req.MediaID == "" {
		row, err := d.store.GetByID(ctx, id)
		if err != nil {
			return render.Output{}, services.Wrap(services.ErrTransient, "page", "load row", fmt.Sprintf("gallery %d", id), err)
		}
		if row != nil {
			req.MediaID = row.MediaID
			req.Hint = gallery.ExtensionHint(row.Extensions, page)
		}
	}
	return d.loader.Load(ctx, req)
}
