package downloads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"galleryd/internal/gallery"
	"galleryd/internal/logging"
	"galleryd/internal/metrics"
	"galleryd/internal/notifications"
	"galleryd/internal/queue"
	"galleryd/internal/remote"
	"galleryd/internal/services"
)

// Store is the persistence surface a Downloader writes through.
type Store interface {
	Upsert(ctx context.Context, entry *queue.Entry) error
	UpdateProgress(ctx context.Context, id int64, pages int, bytes int64) error
	Finalize(ctx context.Context, id int64, pages int, bytes int64) error
}

// Deps are the collaborators shared by every Downloader.
type Deps struct {
	Store    Store
	Fetcher  remote.Fetcher
	Notifier notifications.Service
	Root     string
	Logger   *slog.Logger
}

// Downloader is the state machine for one gallery.
type Downloader struct {
	deps   Deps
	logger *slog.Logger
	folder gallery.Folder

	mu       sync.Mutex
	entry    queue.Entry
	meta     gallery.Metadata
	resolved bool

	flight    singleflight.Group
	cancelled atomic.Bool
	held      atomic.Bool
}

// NewDownloader wraps entry. Entries that already carry page count, media id
// and extension hints start out resolved.
func NewDownloader(entry queue.Entry, deps Deps) *Downloader {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.Noop()
	}
	if entry.Status == "" {
		entry.Status = queue.StatusPendingMetadata
	}
	d := &Downloader{
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "downloader"),
		folder: gallery.NewFolder(deps.Root, entry.ID),
		entry:  entry,
	}
	if entry.PageCount > 0 && entry.MediaID != "" && len(entry.Extensions) == entry.PageCount {
		d.meta = gallery.Metadata{
			ID:         entry.ID,
			MediaID:    entry.MediaID,
			Titles:     gallery.Titles{Pretty: entry.Title},
			PageCount:  entry.PageCount,
			Extensions: append([]string(nil), entry.Extensions...),
			Thumbnail:  entry.Thumbnail,
		}
		d.resolved = true
	}
	return d
}

// ID returns the gallery id.
func (d *Downloader) ID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entry.ID
}

// Entry returns a copy of the current entry state.
func (d *Downloader) Entry() queue.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := d.entry
	entry.Extensions = append([]string(nil), d.entry.Extensions...)
	return entry
}

// Status returns the current lifecycle status.
func (d *Downloader) Status() queue.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entry.Status
}

// MetadataResolved reports whether DownloadGalleryData has succeeded.
func (d *Downloader) MetadataResolved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolved
}

// Metadata returns the resolved metadata.
func (d *Downloader) Metadata() (gallery.Metadata, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta, d.resolved
}

// Folder returns the gallery folder this downloader owns.
func (d *Downloader) Folder() gallery.Folder {
	return d.folder
}

// Cancel detaches the downloader from persistence and asks a running
// Download to stop after the current page.
func (d *Downloader) Cancel() {
	d.mu.Lock()
	d.cancelled.Store(true)
	d.mu.Unlock()
}

// RequestPause holds the downloader: a running Download stops after the
// current page and Fetch skips it until Resume.
func (d *Downloader) RequestPause() {
	d.held.Store(true)
}

// Resume releases a hold placed by RequestPause.
func (d *Downloader) Resume() {
	d.held.Store(false)
}

// Held reports whether a pause was requested.
func (d *Downloader) Held() bool {
	return d.held.Load()
}

// Persist writes the current entry to the store.
func (d *Downloader) Persist(ctx context.Context) error {
	return d.update(ctx, func(*queue.Entry) {})
}

func (d *Downloader) merge(incoming queue.Entry) AddResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return MergeInto(&d.entry, incoming)
}

func (d *Downloader) needsData() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.resolved && !d.entry.Status.IsTerminal()
}

func (d *Downloader) readyForContent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolved && !d.held.Load() && !d.entry.Status.IsTerminal()
}

// update persists a mutated copy of the entry and adopts it once the store
// accepted the write. Cancelled downloaders only change in memory.
func (d *Downloader) update(ctx context.Context, mutate func(*queue.Entry)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.entry
	mutate(&next)
	if !d.cancelled.Load() {
		if err := d.deps.Store.Upsert(context.WithoutCancel(ctx), &next); err != nil {
			return services.Wrap(services.ErrTransient, "store", "persist entry", fmt.Sprintf("gallery %d", next.ID), err)
		}
	}
	d.entry = next
	return nil
}

func (d *Downloader) scoped(ctx context.Context, phase string) (context.Context, *slog.Logger) {
	ctx = services.WithGalleryID(ctx, d.ID())
	ctx = services.WithPhase(ctx, phase)
	return ctx, logging.WithContext(ctx, d.logger)
}

// DownloadGalleryData resolves page count, titles and extension hints. It is
// a no-op once metadata is resolved, and concurrent callers share one fetch.
func (d *Downloader) DownloadGalleryData(ctx context.Context) error {
	if d.MetadataResolved() {
		return nil
	}
	_, err, _ := d.flight.Do("metadata", func() (any, error) {
		return nil, d.resolveMetadata(ctx)
	})
	return err
}

func (d *Downloader) resolveMetadata(ctx context.Context) error {
	if d.MetadataResolved() {
		return nil
	}
	ctx, logger := d.scoped(ctx, "metadata")
	id := d.ID()

	if err := d.update(ctx, func(e *queue.Entry) { e.Status = queue.StatusDownloadingData }); err != nil {
		return err
	}

	meta, err := d.deps.Fetcher.FetchMetadata(ctx, id)
	if err == nil {
		err = meta.Validate()
	}
	if err == nil && meta.ID != id {
		err = services.Wrap(services.ErrValidation, "metadata", "validate", fmt.Sprintf("received gallery %d", meta.ID), nil)
	}
	if err == nil {
		entry := d.Entry()
		_, _, err = gallery.Range{Start: entry.RangeStart, End: entry.RangeEnd}.Resolve(meta.PageCount)
	}
	if err != nil {
		if services.Retryable(err) {
			if perr := d.update(ctx, func(e *queue.Entry) {
				e.Status = queue.StatusPendingMetadata
				e.ErrorMessage = err.Error()
			}); perr != nil {
				logger.Warn("failed to park entry after metadata error", logging.Error(perr))
			}
			logger.Info("metadata fetch deferred", logging.Error(err))
			return err
		}
		return d.fail(ctx, err)
	}

	if err := d.update(ctx, func(e *queue.Entry) {
		if e.Title == "" {
			e.Title = meta.Titles.Display()
		}
		if e.Thumbnail == "" {
			e.Thumbnail = meta.Thumbnail
		}
		e.MediaID = meta.MediaID
		e.PageCount = meta.PageCount
		e.Extensions = append([]string(nil), meta.Extensions...)
		e.Status = queue.StatusPaused
		e.ErrorMessage = ""
	}); err != nil {
		return err
	}

	d.mu.Lock()
	d.meta = meta
	d.resolved = true
	d.mu.Unlock()

	if !d.cancelled.Load() {
		if err := d.folder.WriteSidecar(meta); err != nil {
			logging.WarnWithContext(logger, "sidecar write failed", "sidecar_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "metadata backfill will rewrite it later"),
			)
		}
	}
	logger.Info("metadata resolved",
		logging.String("title", meta.Titles.Display()),
		logging.Int("pages", meta.PageCount),
	)
	return nil
}

// Download runs one content step: every page in range that is not already
// present is fetched and written. The step ends at the first transient
// failure (entry parked at paused), at a fatal failure (entry failed), after
// Cancel, or when the last page is stored (entry completed).
func (d *Downloader) Download(ctx context.Context) error {
	meta, ok := d.Metadata()
	if !ok {
		return services.Wrap(services.ErrTransient, "download", "start", "metadata not resolved", nil)
	}
	if d.Status().IsTerminal() {
		return nil
	}
	stepStartHook(d)
	ctx, logger := d.scoped(ctx, "download")

	// The range is read in the same critical section that marks the entry
	// downloading, after which merges are refused.
	var entry queue.Entry
	if err := d.update(ctx, func(e *queue.Entry) {
		e.Status = queue.StatusDownloading
		e.ErrorMessage = ""
		entry = *e
	}); err != nil {
		return err
	}
	start, end, err := gallery.Range{Start: entry.RangeStart, End: entry.RangeEnd}.Resolve(meta.PageCount)
	if err != nil {
		return d.fail(ctx, err)
	}

	total := end - start + 1
	var (
		done  int
		bytes int64
	)
	for page := start; page <= end; page++ {
		if d.cancelled.Load() {
			logger.Info("download cancelled", logging.Int(logging.FieldPage, page))
			return d.park(ctx, done, bytes, nil)
		}
		if d.held.Load() {
			logger.Info("download paused", logging.Int(logging.FieldPage, page))
			return d.park(ctx, done, bytes, nil)
		}
		if err := ctx.Err(); err != nil {
			return d.park(ctx, done, bytes, err)
		}

		ext := meta.ExtensionFor(page)
		_, size, present, err := d.folder.FindPage(page, ext)
		if err != nil {
			return d.fail(ctx, err)
		}
		if present {
			done++
			bytes += size
			metrics.PagesSkipped.Inc()
			d.progress(ctx, entry.Title, done, total)
			continue
		}

		data, err := d.deps.Fetcher.FetchPage(ctx, remote.PageRef{GalleryID: entry.ID, MediaID: meta.MediaID, Page: page}, ext)
		if err == nil {
			_, err = d.folder.WritePage(page, ext, data)
		}
		if err != nil {
			if services.Retryable(err) {
				logger.Info("download step abandoned",
					logging.Int(logging.FieldPage, page),
					logging.Error(err),
				)
				return d.park(ctx, done, bytes, err)
			}
			return d.fail(ctx, err)
		}

		done++
		bytes += int64(len(data))
		metrics.PagesDownloaded.Inc()
		metrics.BytesDownloaded.Add(float64(len(data)))
		if !d.cancelled.Load() {
			if err := d.deps.Store.UpdateProgress(context.WithoutCancel(ctx), entry.ID, done, bytes); err != nil {
				logger.Warn("progress not persisted", logging.Error(err))
			}
		}
		d.progress(ctx, entry.Title, done, total)
	}

	return d.complete(ctx, logger, entry.Title, done, bytes)
}

func (d *Downloader) complete(ctx context.Context, logger *slog.Logger, title string, done int, bytes int64) error {
	if !d.cancelled.Load() {
		if err := d.deps.Store.Finalize(context.WithoutCancel(ctx), d.ID(), done, bytes); err != nil {
			cause := services.Wrap(services.ErrTransient, "download", "finalize", "", err)
			return d.park(ctx, done, bytes, cause)
		}
	}

	now := time.Now().UTC()
	d.mu.Lock()
	d.entry.Status = queue.StatusCompleted
	d.entry.RangeStart = 0
	d.entry.RangeEnd = 0
	d.entry.PagesDownloaded = done
	d.entry.BytesDownloaded = bytes
	d.entry.ErrorMessage = ""
	d.entry.CompletedAt = &now
	d.mu.Unlock()

	metrics.GalleriesFinished.WithLabelValues(string(queue.StatusCompleted)).Inc()
	logger.Info("gallery download completed",
		logging.Int("pages", done),
		logging.Int64("bytes", bytes),
	)
	d.notify(ctx, notifications.EventDownloadCompleted, notifications.Payload{
		"id":    d.ID(),
		"title": title,
		"total": done,
	})
	return nil
}

// park returns the entry to paused with its progress counters and reports
// cause (nil for a requested stop).
func (d *Downloader) park(ctx context.Context, done int, bytes int64, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := d.update(ctx, func(e *queue.Entry) {
		e.Status = queue.StatusPaused
		e.ErrorMessage = message
		e.PagesDownloaded = done
		e.BytesDownloaded = bytes
	}); err != nil {
		if cause == nil {
			return err
		}
		return errors.Join(cause, err)
	}
	return cause
}

// fail marks the entry failed, notifies, and returns cause.
func (d *Downloader) fail(ctx context.Context, cause error) error {
	ctx, logger := d.scoped(ctx, "failure")
	message := cause.Error()
	if err := d.update(ctx, func(e *queue.Entry) {
		e.Status = queue.StatusFailed
		e.ErrorMessage = message
	}); err != nil {
		logger.Error("failed to persist failure", logging.Error(err))
		return errors.Join(cause, err)
	}

	metrics.GalleriesFinished.WithLabelValues(string(queue.StatusFailed)).Inc()
	logging.ErrorWithContext(logger, "gallery download failed", "download_failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "run galleryd queue retry after fixing the cause"),
	)
	entry := d.Entry()
	d.notify(ctx, notifications.EventDownloadFailed, notifications.Payload{
		"id":    entry.ID,
		"title": entry.Title,
		"error": message,
	})
	return cause
}

func (d *Downloader) progress(ctx context.Context, title string, current, total int) {
	d.notify(ctx, notifications.EventDownloadProgress, notifications.Payload{
		"id":      d.ID(),
		"title":   title,
		"current": current,
		"total":   total,
	})
}

func (d *Downloader) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := d.deps.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(d.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "download continues without this notification"),
		)
	}
}
