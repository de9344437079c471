// Package daemon coordinates the long-running galleryd process and its system
// integration points.
//
// It wires configuration, queue storage, the download worker, the metadata
// backfill, exports and the page loader into a single lifecycle with
// flock-based locking to prevent multiple instances. The HTTP API, the
// periodic wake ticker and the netlink network monitor run under one errgroup
// so a failure in any of them stops the others.
//
// Keep orchestration logic here: download steps live in workflow and
// downloads, while the daemon focuses on startup, shutdown, and routing
// requests to the right component.
package daemon
