package notifications

import (
	"context"
	"log/slog"

	"galleryd/internal/logging"
)

type logService struct {
	logger  *slog.Logger
	sampler *logging.ProgressSampler
}

// NewLogService records events in the daemon log. Progress events are
// sampled to 10% buckets and logged at debug level.
func NewLogService(logger *slog.Logger) Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &logService{
		logger:  logging.NewComponentLogger(logger, "notifications"),
		sampler: logging.NewProgressSampler(10),
	}
}

func (l *logService) Publish(ctx context.Context, event Event, payload Payload) error {
	logger := logging.WithContext(ctx, l.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, string(event)),
		logging.GalleryID(payload.Int64("id")),
	}
	if title := payload.String("title"); title != "" {
		attrs = append(attrs, logging.String("title", title))
	}

	switch event {
	case EventDownloadProgress:
		current, total := payload.Int("current"), payload.Int("total")
		if !l.sampler.ShouldLog(payload.Int64("id"), current, total) {
			return nil
		}
		attrs = append(attrs,
			logging.Int(logging.FieldProgressCurrent, current),
			logging.Int(logging.FieldProgressTotal, total),
		)
		logger.Debug("download progress", logging.Args(attrs...)...)
	case EventDownloadFailed:
		attrs = append(attrs,
			logging.String("reason", payload.String("error")),
			logging.String(logging.FieldErrorHint, "inspect with galleryd queue list --status failed, then galleryd queue retry"),
			logging.String(logging.FieldImpact, "gallery left incomplete"),
		)
		logger.Warn("download failed", logging.Args(attrs...)...)
	default:
		if path := payload.String("path"); path != "" {
			attrs = append(attrs, logging.String("path", path))
		}
		logger.Info("notification", logging.Args(attrs...)...)
	}
	return nil
}
