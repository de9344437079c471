package workflow

import (
	"context"
	"log/slog"

	"galleryd/internal/gallery"
	"galleryd/internal/logging"
	"galleryd/internal/queue"
	"galleryd/internal/remote"
	"galleryd/internal/scheduler"
	"galleryd/internal/services"
)

// Backfill writes missing metadata sidecars for gallery folders on disk.
type Backfill struct {
	root    string
	store   Store
	fetcher remote.Fetcher
	logger  *slog.Logger
}

// BackfillReport counts what one pass did.
type BackfillReport struct {
	Scanned  int
	Written  int
	Skipped  int
	Deferred int
	NotFound int
}

// NewBackfill builds the job over the download root.
func NewBackfill(root string, store Store, fetcher remote.Fetcher, logger *slog.Logger) *Backfill {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Backfill{
		root:    root,
		store:   store,
		fetcher: fetcher,
		logger:  logging.NewComponentLogger(logger, "backfill"),
	}
}

// Job returns the scheduler definition of the backfill job.
func (b *Backfill) Job() scheduler.Job {
	return scheduler.Job{
		Name:        JobBackfill,
		Constraints: scheduler.Constraints{NetworkRequired: true},
		Run: func(ctx context.Context) scheduler.Result {
			report, err := b.Run(ctx)
			if err != nil {
				b.logger.Warn("backfill pass failed", logging.Error(err))
				return scheduler.Retry
			}
			if report.Deferred > 0 {
				return scheduler.Retry
			}
			return scheduler.Success
		},
	}
}

// Run makes one pass. Folders owned by an unfinished download are skipped;
// their downloader writes the sidecar itself.
func (b *Backfill) Run(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport
	ids, err := gallery.ScanFolders(b.root)
	if err != nil {
		return report, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		folder := gallery.NewFolder(b.root, id)
		if _, ok, err := folder.ReadSidecar(); err != nil || ok {
			if err != nil {
				b.logger.Warn("unreadable sidecar", logging.GalleryID(id), logging.Error(err))
			}
			report.Skipped++
			continue
		}

		row, err := b.store.GetByID(ctx, id)
		if err != nil {
			return report, err
		}
		if row != nil && !row.Status.IsTerminal() {
			report.Skipped++
			continue
		}

		meta, err := b.metadata(ctx, id, row)
		if err != nil {
			switch {
			case services.Retryable(err):
				report.Deferred++
			default:
				report.NotFound++
			}
			b.logger.Info("sidecar not written", logging.GalleryID(id), logging.Error(err))
			continue
		}
		if err := folder.WriteSidecar(meta); err != nil {
			return report, services.Wrap(services.ErrLocalIO, "backfill", "write sidecar", folder.Dir(), err)
		}
		report.Written++
	}
	if report.Written > 0 {
		b.logger.Info("sidecars backfilled",
			logging.Int("written", report.Written),
			logging.Int("scanned", report.Scanned),
		)
	}
	return report, nil
}

func (b *Backfill) metadata(ctx context.Context, id int64, row *queue.Entry) (gallery.Metadata, error) {
	if row != nil && row.MetadataResolved() && row.MediaID != "" && len(row.Extensions) == row.PageCount {
		meta := gallery.Metadata{
			ID:         id,
			MediaID:    row.MediaID,
			Titles:     gallery.Titles{Pretty: row.Title},
			PageCount:  row.PageCount,
			Extensions: append([]string(nil), row.Extensions...),
			Thumbnail:  row.Thumbnail,
		}
		if err := meta.Validate(); err == nil {
			return meta, nil
		}
	}
	meta, err := b.fetcher.FetchMetadata(ctx, id)
	if err != nil {
		return gallery.Metadata{}, err
	}
	return meta, meta.Validate()
}
