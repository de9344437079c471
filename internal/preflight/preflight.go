package preflight

import (
	"context"

	"galleryd/internal/config"
	"galleryd/internal/logging"
	"galleryd/internal/remote"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every readiness check for cfg. The queue database check is
// skipped when db is nil.
func RunAll(ctx context.Context, cfg *config.Config, db HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckRemote(ctx, remote.New(cfg, logging.NewNop()), cfg.Remote.BaseURL),
		CheckExportBucket(ctx, cfg.Export.BucketURL),
	}
	if db != nil {
		results = append(results, CheckQueueDatabase(ctx, db))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
