// Package workflow drives the download queue from scheduler jobs.
//
// Worker.Run is the body of the "download-worker" job. Each invocation takes
// the global Token, drains metadata work, rebuilds the in-memory queue from
// the store when it runs dry, and advances one gallery by one content step.
// The token is created once by the daemon and passed to every Run, so two
// invocations never download at the same time no matter who triggered them.
//
// Enqueue is the entry point for new requests from the API and CLI. Backfill
// is the "metadata-backfill" job that writes missing sidecars for gallery
// folders already on disk.
package workflow
