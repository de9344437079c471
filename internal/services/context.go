package services

import "context"

type contextKey string

const (
	galleryIDKey contextKey = "gallery_id"
	phaseKey     contextKey = "phase"
	jobKey       contextKey = "job"
	requestIDKey contextKey = "request_id"
)

// WithGalleryID annotates context with the gallery identifier.
func WithGalleryID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, galleryIDKey, id)
}

// GalleryIDFromContext extracts the gallery identifier if present.
func GalleryIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(galleryIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithPhase annotates context with the download phase (metadata, content, export).
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext returns the phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(phaseKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithJob annotates context with the scheduler job name.
func WithJob(ctx context.Context, job string) context.Context {
	if job == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKey, job)
}

// JobFromContext returns the job name if present.
func JobFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(jobKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
