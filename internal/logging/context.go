package logging

import (
	"context"
	"log/slog"

	"galleryd/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldGalleryID is the standardized structured logging key for gallery identifiers.
	FieldGalleryID = "gallery_id"
	// FieldPhase is the standardized structured logging key for download phases (metadata, content, export).
	FieldPhase = "phase"
	// FieldJob is the standardized structured logging key for scheduler job names.
	FieldJob = "job"
	// FieldPage is the standardized structured logging key for 1-based page indices.
	FieldPage = "page"
	// FieldProgressCurrent is the number of pages present so far.
	FieldProgressCurrent = "progress_current"
	// FieldProgressTotal is the number of pages in the requested range.
	FieldProgressTotal = "progress_total"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.GalleryIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldGalleryID, id))
	}
	if phase, ok := services.PhaseFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	if job, ok := services.JobFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJob, job))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
