// Package services defines shared utilities consumed by the downloader, the
// orchestration worker, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp gallery IDs, phases, job names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent queue statuses (paused for retryable, failed otherwise).
//
// Use these helpers when wiring new download logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services
