// Package queue persists gallery downloads in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store is the single source of truth for queue membership across process
// restarts. It manages database connections, schema initialization, stats
// queries, in-flight recovery, and status transitions that mirror the
// downloader state machine. Entries carry the requested page range, resolved
// metadata (page count, media id, per-page extension hints), and progress
// counters so a restarted worker can resume without refetching metadata.
//
// Terminal rows (completed, failed) stay in the table for inspection until
// they are cleared. Schema changes bump the version in schema.go; users delete
// the database to adopt the new schema.
package queue
