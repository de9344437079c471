package pagecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"galleryd/internal/config"
	"galleryd/internal/fileutil"
	"galleryd/internal/gallery"
	"galleryd/internal/logging"
)

// freeSpaceFloor is the minimum free-space ratio kept on the cache filesystem.
const freeSpaceFloor = 0.20

type statfsFunc func(path string) (total uint64, free uint64, err error)

// Cache stores page bytes keyed by gallery and page number.
type Cache struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
	statfs   statfsFunc

	mu sync.Mutex
}

// Stats describes current cache usage.
type Stats struct {
	Entries    int     `json:"entries"`
	TotalBytes int64   `json:"totalBytes"`
	MaxBytes   int64   `json:"maxBytes"`
	FreeRatio  float64 `json:"freeRatio"`
}

// New builds a cache from cfg. It returns nil when page_cache_mb is zero.
func New(cfg *config.Config, logger *slog.Logger) *Cache {
	if cfg == nil || cfg.Download.PageCacheMB <= 0 {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		root:     cfg.PageCacheDir(),
		maxBytes: int64(cfg.Download.PageCacheMB) * 1024 * 1024,
		logger:   logging.NewComponentLogger(logger, "pagecache"),
		statfs:   realStatfs,
	}
}

func (c *Cache) galleryDir(id int64) string {
	return filepath.Join(c.root, strconv.FormatInt(id, 10))
}

// Get returns the cached bytes and extension of a page.
func (c *Cache) Get(id int64, page int) ([]byte, string, bool) {
	if c == nil {
		return nil, "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(c.galleryDir(id), strconv.Itoa(page)+".*"))
	if err != nil || len(matches) == 0 {
		return nil, "", false
	}
	for _, path := range matches {
		ext := gallery.ExtensionOf(path)
		if !gallery.KnownExtension(ext) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			continue
		}
		now := time.Now()
		_ = os.Chtimes(path, now, now)
		return data, ext, true
	}
	return nil, "", false
}

// Put stores a page and prunes the cache back under its limits.
func (c *Cache) Put(ctx context.Context, id int64, page int, ext string, data []byte) error {
	if c == nil || len(data) == 0 {
		return nil
	}
	if int64(len(data)) > c.maxBytes {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.galleryDir(id), fmt.Sprintf("%d.%s", page, ext))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("pagecache: write %s: %w", path, err)
	}
	return c.prune(ctx, path)
}

// Evict drops every cached page of a gallery.
func (c *Cache) Evict(id int64) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.galleryDir(id)); err != nil {
		return fmt.Errorf("pagecache: evict gallery %d: %w", id, err)
	}
	return nil
}

// Stats reports current usage. A nil cache reports zeros.
func (c *Cache) Stats() (Stats, error) {
	if c == nil {
		return Stats{}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, total, err := c.scan()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Entries: len(entries), TotalBytes: total, MaxBytes: c.maxBytes}
	if size, free, err := c.statfs(c.root); err == nil && size > 0 {
		stats.FreeRatio = float64(free) / float64(size)
	}
	return stats, nil
}

type cacheEntry struct {
	path      string
	sizeBytes int64
	modTime   time.Time
}

// prune removes the oldest entries until both the size cap and the free
// space floor hold. keep is never removed.
func (c *Cache) prune(ctx context.Context, keep string) error {
	entries, total, err := c.scan()
	if err != nil {
		return err
	}
	for _, oldest := range entries {
		if total <= c.maxBytes && c.freeSpaceOK() {
			return nil
		}
		if oldest.path == keep {
			continue
		}
		if err := os.Remove(oldest.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("pagecache: remove %s: %w", oldest.path, err)
		}
		c.logger.DebugContext(ctx, "pruned cached page",
			logging.String("path", oldest.path),
			logging.Int64("size_bytes", oldest.sizeBytes),
		)
		total -= oldest.sizeBytes
		_ = os.Remove(filepath.Dir(oldest.path))
	}
	return nil
}

// scan lists cached pages oldest first.
func (c *Cache) scan() ([]cacheEntry, int64, error) {
	var entries []cacheEntry
	var total int64
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		entries = append(entries, cacheEntry{path: path, sizeBytes: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("pagecache: scan: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func (c *Cache) freeSpaceOK() bool {
	size, free, err := c.statfs(c.root)
	if err != nil || size == 0 {
		return true
	}
	return float64(free)/float64(size) >= freeSpaceFloor
}

func realStatfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
