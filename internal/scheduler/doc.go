// Package scheduler runs named background jobs inside the daemon.
//
// Job names are unique. Triggering a job that is already pending or running
// is dropped (KEEP). A job waits for its constraints (network reachable,
// enough free disk) before each run and reports Success, Retry or Failure;
// Retry re-runs it after an exponential backoff. One-shot jobs are forgotten
// after a terminal result.
package scheduler
