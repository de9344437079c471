package workflow

import (
	"context"
	"fmt"

	"galleryd/internal/downloads"
	"galleryd/internal/logging"
	"galleryd/internal/queue"
	"galleryd/internal/services"
)

// Enqueue validates req, merges it with any persisted row for the same id,
// adds it to the queue, persists the result and triggers the download job.
// A gallery that is currently downloading is left alone and AddIgnored is
// returned.
func (w *Worker) Enqueue(ctx context.Context, req downloads.Request) (downloads.AddResult, error) {
	if err := req.Validate(); err != nil {
		return downloads.AddIgnored, err
	}
	ctx = services.WithGalleryID(ctx, req.ID)
	logger := logging.WithContext(ctx, w.logger)

	incoming := req.Entry()
	row, err := w.store.GetByID(ctx, req.ID)
	if err != nil {
		return downloads.AddIgnored, services.Wrap(services.ErrTransient, "enqueue", "load row", fmt.Sprintf("gallery %d", req.ID), err)
	}
	if row != nil {
		incoming = fromRow(row, incoming)
	}

	res, err := w.queue.Add(incoming)
	if err != nil {
		return res, err
	}
	if res == downloads.AddIgnored {
		logger.Info("gallery is downloading; request ignored")
		return res, nil
	}
	if d, ok := w.queue.Get(req.ID); ok {
		if err := d.Persist(ctx); err != nil {
			return res, err
		}
	}
	logger.Info("gallery queued", logging.String("result", res.String()))
	w.trigger()
	return res, nil
}

// Retry re-queues a failed gallery with its stored range.
func (w *Worker) Retry(ctx context.Context, id int64) (downloads.AddResult, error) {
	row, err := w.store.GetByID(ctx, id)
	if err != nil {
		return downloads.AddIgnored, services.Wrap(services.ErrTransient, "retry", "load row", fmt.Sprintf("gallery %d", id), err)
	}
	if row == nil {
		return downloads.AddIgnored, services.Wrap(services.ErrNotFound, "retry", "load row", fmt.Sprintf("gallery %d", id), nil)
	}
	if row.Status != queue.StatusFailed {
		return downloads.AddIgnored, services.Wrap(services.ErrValidation, "retry", "check status", fmt.Sprintf("gallery %d is %s", id, row.Status), nil)
	}
	req := downloads.Request{ID: id}
	req.Range.Start, req.Range.End = row.RangeStart, row.RangeEnd
	return w.Enqueue(ctx, req)
}

// fromRow folds an incoming request into the persisted row. Non-terminal
// rows are restored to their resume state first; terminal rows start a new
// run that keeps resolved metadata.
func fromRow(row *queue.Entry, incoming queue.Entry) queue.Entry {
	base := *row
	base.Extensions = append([]string(nil), row.Extensions...)
	if base.Status.IsTerminal() {
		base.ErrorMessage = ""
		base.CompletedAt = nil
		base.PagesDownloaded = 0
		base.BytesDownloaded = 0
		base.Status = queue.StatusPendingMetadata
		if base.MetadataResolved() {
			base.Status = queue.StatusPaused
		}
	} else {
		base = downloads.Restore([]*queue.Entry{&base})[0]
	}
	downloads.MergeInto(&base, incoming)
	return base
}
