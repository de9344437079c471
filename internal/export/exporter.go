// Package export packs downloaded galleries into ZIP archives stored in a
// blob bucket.
package export

import (
	"archive/zip"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"galleryd/internal/config"
	"galleryd/internal/gallery"
	"galleryd/internal/logging"
	"galleryd/internal/metrics"
	"galleryd/internal/notifications"
	"galleryd/internal/queue"
	"galleryd/internal/scheduler"
	"galleryd/internal/services"
	"galleryd/internal/textutil"
)

// Store is the read access the exporter needs.
type Store interface {
	GetByID(ctx context.Context, id int64) (*queue.Entry, error)
}

// Result describes a written archive.
type Result struct {
	GalleryID int64
	Key       string
	Pages     int
	Bytes     int64
}

// Exporter writes archives into one bucket.
type Exporter struct {
	bucket   *blob.Bucket
	root     string
	stateDir string
	minFree  uint64
	store    Store
	notifier notifications.Service
	logger   *slog.Logger
}

// Open opens the configured bucket. file:// buckets are created on demand.
func Open(ctx context.Context, cfg *config.Config, store Store, notifier notifications.Service, logger *slog.Logger) (*Exporter, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	if err := ensureFileBucket(cfg.Export.BucketURL); err != nil {
		return nil, err
	}
	bucket, err := blob.OpenBucket(ctx, cfg.Export.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("open export bucket %q: %w", cfg.Export.BucketURL, err)
	}
	return &Exporter{
		bucket:   bucket,
		root:     cfg.Paths.DownloadDir,
		stateDir: cfg.Paths.StateDir,
		minFree:  uint64(cfg.Export.MinFreeMB) * 1024 * 1024,
		store:    store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "export"),
	}, nil
}

func ensureFileBucket(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse export bucket url: %w", err)
	}
	if parsed.Scheme != "file" {
		return nil
	}
	if err := os.MkdirAll(filepath.FromSlash(parsed.Path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	return nil
}

// Bucket exposes the underlying bucket for listing and reads.
func (e *Exporter) Bucket() *blob.Bucket {
	return e.bucket
}

// Close releases the bucket.
func (e *Exporter) Close() error {
	return e.bucket.Close()
}

// ArchiveKey names the archive for a gallery: "<id> - <title>.zip", or
// "<id>.zip" without a usable title.
func ArchiveKey(id int64, title string) string {
	name := textutil.SanitizeFileName(title)
	if name == "" {
		return strconv.FormatInt(id, 10) + ".zip"
	}
	return fmt.Sprintf("%d - %s.zip", id, name)
}

// Export archives every present page of a completed gallery.
func (e *Exporter) Export(ctx context.Context, id int64) (Result, error) {
	ctx = services.WithGalleryID(ctx, id)
	ctx = services.WithPhase(ctx, "export")
	logger := logging.WithContext(ctx, e.logger)

	row, err := e.store.GetByID(ctx, id)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "export", "load row", fmt.Sprintf("gallery %d", id), err)
	}
	if row == nil {
		return Result{}, services.Wrap(services.ErrNotFound, "export", "load row", fmt.Sprintf("gallery %d", id), nil)
	}
	if row.Status != queue.StatusCompleted {
		return Result{}, services.Wrap(services.ErrValidation, "export", "check status", fmt.Sprintf("gallery %d is %s", id, row.Status), nil)
	}

	folder := gallery.NewFolder(e.root, id)
	pages, err := folder.PresentPages(1, row.PageCount, row.Extensions)
	if err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{}, services.Wrap(services.ErrNotFound, "export", "collect pages", folder.Dir(), nil)
	}

	key := ArchiveKey(id, row.Title)
	written, err := e.write(ctx, key, pages)
	if err != nil {
		metrics.Exports.WithLabelValues(metrics.OutcomeFatal).Inc()
		return Result{}, err
	}
	metrics.Exports.WithLabelValues(metrics.OutcomeOK).Inc()
	logger.Info("gallery exported",
		logging.String("key", key),
		logging.Int("pages", len(pages)),
		logging.Int64("bytes", written),
	)

	if err := e.notifier.Publish(ctx, notifications.EventExportCompleted, notifications.Payload{
		"id":    id,
		"title": row.Title,
		"path":  key,
	}); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "export succeeded without a notification"),
		)
	}
	return Result{GalleryID: id, Key: key, Pages: len(pages), Bytes: written}, nil
}

func (e *Exporter) write(ctx context.Context, key string, pages []string) (int64, error) {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := e.bucket.NewWriter(writeCtx, key, &blob.WriterOptions{ContentType: "application/zip"})
	if err != nil {
		return 0, services.Wrap(services.ErrLocalIO, "export", "open archive", key, err)
	}
	counter := &countingWriter{w: w}
	if err := writeZip(counter, pages); err != nil {
		cancel()
		_ = w.Close()
		return 0, services.Wrap(services.ErrLocalIO, "export", "write archive", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, services.Wrap(services.ErrLocalIO, "export", "close archive", key, err)
	}
	return counter.n, nil
}

func writeZip(dst io.Writer, pages []string) error {
	zw := zip.NewWriter(dst)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	for _, path := range pages {
		if err := addFile(zw, path); err != nil {
			return errors.Join(err, zw.Close())
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, file)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Job builds the one-shot scheduler job for exporting id. The name carries a
// fresh uuid so repeated requests queue separately.
func (e *Exporter) Job(id int64) scheduler.Job {
	name := "export-" + uuid.NewString()
	return scheduler.Job{
		Name:    name,
		OneShot: true,
		Constraints: scheduler.Constraints{
			StorageNotLow: true,
			StoragePath:   e.stateDir,
			MinFreeBytes:  e.minFree,
		},
		Run: func(ctx context.Context) scheduler.Result {
			_, err := e.Export(services.WithJob(ctx, name), id)
			switch {
			case err == nil:
				return scheduler.Success
			case services.Retryable(err):
				return scheduler.Retry
			default:
				logging.ErrorWithContext(e.logger, "export failed", "export_failed",
					logging.GalleryID(id),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "export only completed galleries"),
				)
				return scheduler.Failure
			}
		},
	}
}
