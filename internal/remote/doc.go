// Package remote is the HTTP transport for gallery metadata and page images.
//
// Client performs exactly one attempt per call and classifies failures for
// the scheduler: timeouts, connection errors, 408, 429 and 5xx wrap
// services.ErrTransient; 404 wraps services.ErrNotFound; malformed metadata
// and other client errors wrap services.ErrValidation. Retries and backoff
// belong to the scheduler, not to this package.
package remote
