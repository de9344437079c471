// Package staging sweeps the temp files that atomic page and sidecar writes
// leave behind when the process dies between create and rename.
package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"galleryd/internal/logging"
)

// CleanResult lists removed files and the paths that could not be removed.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// IsPartial reports whether name looks like an in-progress atomic write,
// ".<target>.<random>.part".
func IsPartial(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".part")
}

// CleanPartials removes partial files older than maxAge from root and the
// gallery folders directly below it. Younger files may belong to a write in
// flight and are kept.
func CleanPartials(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	cutoff := time.Now().Add(-maxAge)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != root {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if depth(root, path) > 1 {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsPartial(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logger.Warn("failed to remove partial file",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "partial_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check download_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			return nil
		}
		result.Removed = append(result.Removed, path)
		logger.Info("removed partial file",
			logging.String("path", path),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "partial_cleanup"),
		)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
	}
	return result
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
