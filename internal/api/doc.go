// Package api defines the wire types of the daemon's HTTP API and the client
// the CLI uses to call it.
//
// # Key Types
//
// QueueItem: transport representation of a download with page progress,
// byte counts and status.
//
// DaemonStatus: daemon running state, queue counts, in-memory queue depth and
// scheduler jobs.
//
// DownloadRequest, ExportRequest, ClearRequest: inbound bodies
// checked by Validate with go-playground/validator rules.
//
// # Converters
//
// FromEntry / FromEntries: queue.Entry -> QueueItem.
//
// MergeQueueStats: per-status counts with every status present.
//
// # Client
//
// Client calls the daemon over HTTP and maps error responses back onto the
// services error markers so callers classify failures the same way in
// process and over the wire.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses are the lowercase queue strings.
// Timestamps use RFC3339 with milliseconds.
package api
