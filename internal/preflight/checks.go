package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"golang.org/x/sys/unix"

	"galleryd/internal/queue"
)

const remoteCheckTimeout = 5 * time.Second

// Pinger is satisfied by the remote client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker is satisfied by the queue store.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRemote verifies the gallery host answers with the configured cookie.
// It uses a short timeout and a single attempt.
func CheckRemote(ctx context.Context, client Pinger, baseURL string) Result {
	const name = "Remote API"

	if strings.TrimSpace(baseURL) == "" {
		return Result{Name: name, Detail: "missing remote.base_url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()

	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", baseURL, summarizeRemoteError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", baseURL)}
}

// CheckExportBucket verifies the export bucket opens and is accessible.
func CheckExportBucket(ctx context.Context, rawURL string) Result {
	const name = "Export bucket"

	if strings.TrimSpace(rawURL) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme == "file" {
		dir := filepath.FromSlash(parsed.Path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first export)", rawURL)}
		}
	}

	bucket, err := blob.OpenBucket(ctx, rawURL)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", rawURL, err)}
	}
	defer bucket.Close()

	ok, err := bucket.IsAccessible(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", rawURL, err)}
	}
	if !ok {
		return Result{Name: name, Detail: fmt.Sprintf("%s (not accessible)", rawURL)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (accessible)", rawURL)}
}

// CheckQueueDatabase runs the store's integrity diagnostics.
func CheckQueueDatabase(ctx context.Context, db HealthChecker) Result {
	const name = "Queue database"

	health, err := db.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", health.DBPath, err)}
	}
	switch {
	case !health.DatabaseExists:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: missing)", health.DBPath)}
	case len(health.MissingColumns) > 0:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: missing columns %s)", health.DBPath, strings.Join(health.MissingColumns, ", "))}
	case !health.IntegrityCheck:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: integrity check failed)", health.DBPath)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema v%d, %d rows)", health.DBPath, health.SchemaVersion, health.TotalEntries)}
}

func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "unreachable"
	}
	if strings.Contains(err.Error(), "remote.cookie") {
		return "rejected; check remote.cookie"
	}
	return err.Error()
}
