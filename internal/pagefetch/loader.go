package pagefetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/semaphore"

	"galleryd/internal/config"
	"galleryd/internal/gallery"
	"galleryd/internal/logging"
	"galleryd/internal/pagecache"
	"galleryd/internal/remote"
	"galleryd/internal/render"
	"galleryd/internal/services"
)

// PageRequest identifies a rendered page.
type PageRequest struct {
	GalleryID int64
	MediaID   string
	Page      int
	Hint      string
	Options   render.Options
}

// Loader serves rendered pages from the gallery folder, then the page cache,
// then the remote fetcher through the sequential queue.
type Loader struct {
	queue      *Queue
	cache      *pagecache.Cache
	fetcher    remote.Fetcher
	root       string
	candidates []string
	pool       *semaphore.Weighted
	logger     *slog.Logger
}

// NewLoader builds a loader over cfg's download directory and IO pool size.
func NewLoader(cfg *config.Config, queue *Queue, fetcher remote.Fetcher, logger *slog.Logger) *Loader {
	workers := cfg.Download.IOWorkers
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{
		queue:      queue,
		cache:      pagecache.New(cfg, logger),
		fetcher:    fetcher,
		root:       cfg.Paths.DownloadDir,
		candidates: append([]string(nil), cfg.Download.Extensions...),
		pool:       semaphore.NewWeighted(int64(workers)),
		logger:     logging.NewComponentLogger(logger, "pagefetch"),
	}
}

// Load returns the requested page rendered with req.Options.
func (l *Loader) Load(ctx context.Context, req PageRequest) (render.Output, error) {
	if req.GalleryID <= 0 || req.Page < 1 {
		return render.Output{}, services.Wrap(services.ErrValidation, "pagefetch", "load", fmt.Sprintf("gallery %d page %d", req.GalleryID, req.Page), nil)
	}
	if err := req.Options.Validate(); err != nil {
		return render.Output{}, err
	}
	hint := req.Hint
	if !gallery.KnownExtension(hint) {
		hint = gallery.ExtJPG
	}

	data, ext, err := l.local(ctx, req, hint)
	if err != nil {
		return render.Output{}, err
	}
	if data == nil {
		var cached bool
		data, ext, cached = l.cache.Get(req.GalleryID, req.Page)
		if !cached {
			data, ext, err = l.remote(ctx, req, hint)
			if err != nil {
				return render.Output{}, err
			}
			if err := l.cache.Put(ctx, req.GalleryID, req.Page, ext, data); err != nil {
				l.logger.Warn("page cache write failed", logging.GalleryID(req.GalleryID), logging.Error(err))
			}
		}
	}

	if err := l.pool.Acquire(ctx, 1); err != nil {
		return render.Output{}, err
	}
	defer l.pool.Release(1)
	return render.Render(data, ext, req.Options)
}

// Cache exposes the page cache; it is nil when caching is disabled.
func (l *Loader) Cache() *pagecache.Cache {
	return l.cache
}

func (l *Loader) local(ctx context.Context, req PageRequest, hint string) ([]byte, string, error) {
	path, _, ok, err := gallery.NewFolder(l.root, req.GalleryID).FindPage(req.Page, hint)
	if err != nil || !ok {
		return nil, "", err
	}
	if err := l.pool.Acquire(ctx, 1); err != nil {
		return nil, "", err
	}
	defer l.pool.Release(1)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", services.Wrap(services.ErrLocalIO, "pagefetch", "read page", path, err)
	}
	return data, gallery.ExtensionOf(path), nil
}

func (l *Loader) remote(ctx context.Context, req PageRequest, hint string) ([]byte, string, error) {
	if req.MediaID == "" {
		return nil, "", services.Wrap(services.ErrTransient, "pagefetch", "load", "metadata not resolved", nil)
	}
	handle := l.queue.Acquire(req.GalleryID)
	defer handle.Release()

	ref := remote.PageRef{GalleryID: req.GalleryID, MediaID: req.MediaID, Page: req.Page}
	results := make(chan Result, 1)
	l.queue.FetchWithRetry(req.GalleryID, hint, l.candidates,
		func(queueCtx context.Context, ext string) ([]byte, error) {
			if err := queueCtx.Err(); err != nil {
				return nil, err
			}
			return l.fetcher.FetchPage(ctx, ref, ext)
		},
		func(r Result) { results <- r },
	)

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case r := <-results:
		if r.Err != nil {
			l.logger.Debug("page fetch failed",
				logging.GalleryID(req.GalleryID),
				logging.Int(logging.FieldPage, req.Page),
				logging.Error(r.Err),
			)
			return nil, "", r.Err
		}
		return r.Data, r.Ext, nil
	}
}
