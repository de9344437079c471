package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"galleryd/internal/config"
	"galleryd/internal/downloads"
	"galleryd/internal/logging"
	"galleryd/internal/metrics"
	"galleryd/internal/queue"
	"galleryd/internal/scheduler"
	"galleryd/internal/services"
)

// Job names registered with the scheduler.
const (
	JobDownload = "download-worker"
	JobBackfill = "metadata-backfill"
)

// Store is the persistence surface the worker needs.
type Store interface {
	downloads.Store
	LoadAll(ctx context.Context) ([]*queue.Entry, error)
	GetByID(ctx context.Context, id int64) (*queue.Entry, error)
}

// Worker runs download steps against a shared queue.
type Worker struct {
	store     Store
	queue     *downloads.Queue
	logger    *slog.Logger
	pollPause time.Duration
	trigger   func() bool

	// stepHook runs between the metadata drain and the content step.
	stepHook func()
}

// NewWorker wires a worker to store and q.
func NewWorker(cfg *config.Config, store Store, q *downloads.Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:     store,
		queue:     q,
		logger:    logging.NewComponentLogger(logger, "worker"),
		pollPause: cfg.MetadataPollPause(),
		trigger:   func() bool { return false },
	}
}

// SetTrigger installs the callback Enqueue uses to start the download job.
func (w *Worker) SetTrigger(trigger func() bool) {
	if trigger == nil {
		trigger = func() bool { return false }
	}
	w.trigger = trigger
}

// Queue exposes the in-memory queue the worker drains.
func (w *Worker) Queue() *downloads.Queue {
	return w.queue
}

// Job returns the scheduler definition of the download job. It needs the
// network and repeats without a new trigger while work remains.
func (w *Worker) Job(token *Token) scheduler.Job {
	return scheduler.Job{
		Name:        JobDownload,
		Constraints: scheduler.Constraints{NetworkRequired: true},
		Run: func(ctx context.Context) scheduler.Result {
			return w.Run(ctx, token)
		},
		Repeat: w.queue.HasWork,
	}
}

// Run performs one invocation: metadata drain, optional restore from the
// store, then a single content step. It returns Retry when a step failed
// transiently or the store could not be read; per-gallery fatal errors fail
// the gallery, not the job.
func (w *Worker) Run(ctx context.Context, token *Token) (result scheduler.Result) {
	start := time.Now()
	if err := token.Acquire(ctx); err != nil {
		return scheduler.Retry
	}
	defer token.Release()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(w.logger, "download step panicked", "worker_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect the stack in the daemon log"),
			)
			result = scheduler.Failure
		}
		metrics.StepDuration.Observe(time.Since(start).Seconds())
	}()

	_, transient := w.drainMetadata(ctx)

	d, ok := w.queue.Fetch()
	if !ok && w.queue.Len() == 0 {
		restored, err := w.restore(ctx)
		if err != nil {
			logging.ErrorWithContext(w.logger, "queue restore failed", "queue_restore_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the queue database with galleryd status"),
			)
			return scheduler.Retry
		}
		if restored > 0 {
			_, again := w.drainMetadata(ctx)
			transient = again || transient
			d, ok = w.queue.Fetch()
		}
	}
	if !ok {
		if transient {
			return scheduler.Retry
		}
		return scheduler.Success
	}

	if w.stepHook != nil {
		w.stepHook()
	}
	err := w.step(ctx, d)
	if d.Status().IsTerminal() {
		w.queue.Complete(d.ID())
	}
	if err != nil && services.Retryable(err) {
		return scheduler.Retry
	}
	if transient {
		return scheduler.Retry
	}
	return scheduler.Success
}

func (w *Worker) step(ctx context.Context, d *downloads.Downloader) error {
	ctx = services.WithJob(ctx, JobDownload)
	if err := d.DownloadGalleryData(ctx); err != nil {
		return err
	}
	return d.Download(ctx)
}

// Prefetch resolves metadata for queued galleries without the token. Metadata
// resolution never writes pages, and entries claimed here are skipped by a
// concurrent drain in Run. Resolved galleries wake the download job.
func (w *Worker) Prefetch(ctx context.Context) (int, error) {
	resolved, transient := w.drainMetadata(ctx)
	if resolved > 0 {
		w.trigger()
	}
	if transient {
		return resolved, services.Wrap(services.ErrTransient, "prefetch", "resolve metadata", "some galleries could not be resolved", nil)
	}
	return resolved, ctx.Err()
}

// drainMetadata resolves every entry waiting for metadata and reports how
// many resolved and whether any of them failed transiently.
func (w *Worker) drainMetadata(ctx context.Context) (int, bool) {
	var (
		claimed   []int64
		resolved  int
		transient bool
	)
	defer func() {
		for _, id := range claimed {
			w.queue.ReleaseData(id)
		}
	}()
	for ctx.Err() == nil {
		d, ok := w.queue.FetchForData()
		if !ok {
			break
		}
		id := d.ID()
		claimed = append(claimed, id)
		err := d.DownloadGalleryData(services.WithJob(ctx, JobDownload))
		switch {
		case d.Status().IsTerminal():
			w.queue.Complete(id)
		case err != nil && services.Retryable(err):
			transient = true
		case err == nil:
			resolved++
		}
		if !sleepCtx(ctx, w.pollPause) {
			break
		}
	}
	return resolved, transient
}

// restore rebuilds the queue from persisted rows and returns how many were
// added.
func (w *Worker) restore(ctx context.Context) (int, error) {
	rows, err := w.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load queue: %w", err)
	}
	added := 0
	for _, entry := range downloads.Restore(rows) {
		res, err := w.queue.Add(entry)
		if err != nil {
			w.logger.Warn("skipping unrestorable entry", logging.GalleryID(entry.ID), logging.Error(err))
			continue
		}
		if res == downloads.AddInserted {
			added++
		}
	}
	if added > 0 {
		w.logger.Info("queue restored from store", logging.Int("entries", added))
	}
	return added, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
