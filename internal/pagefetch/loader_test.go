package pagefetch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryd/internal/gallery"
	"galleryd/internal/pagefetch"
	"galleryd/internal/render"
	"galleryd/internal/services"
	"galleryd/internal/testsupport"
)

func TestLoaderPrefersLocalPage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WritePage(t, cfg.Paths.DownloadDir, 21, 2, "png", 16)
	fetcher := testsupport.NewFakeFetcher()
	q := pagefetch.NewQueue()
	defer q.Close()
	loader := pagefetch.NewLoader(cfg, q, fetcher, nil)

	out, err := loader.Load(context.Background(), pagefetch.PageRequest{GalleryID: 21, Page: 2, Hint: "jpg"})
	require.NoError(t, err)
	assert.Len(t, out.Data, 16)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Empty(t, fetcher.FetchedPages(21))
}

func TestLoaderRetriesRemoteExtensions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	meta := testsupport.SimpleGallery(22, 2)
	meta.Extensions = []string{gallery.ExtPNG, gallery.ExtWEBP}
	fetcher := testsupport.NewFakeFetcher(meta)
	q := pagefetch.NewQueue()
	defer q.Close()
	loader := pagefetch.NewLoader(cfg, q, fetcher, nil)

	out, err := loader.Load(context.Background(), pagefetch.PageRequest{
		GalleryID: 22,
		MediaID:   meta.MediaID,
		Page:      2,
		Hint:      "jpg",
		Options:   render.Options{Quality: render.QualityFull},
	})
	require.NoError(t, err)
	assert.Equal(t, "image/webp", out.ContentType)
	assert.Equal(t, "gallery-22-page-2", string(out.Data))
	assert.Equal(t, []int{2, 2, 2}, fetcher.FetchedPages(22), "jpg, png, then webp")

	ok, _ := gallery.NewFolder(cfg.Paths.DownloadDir, 22).Exists()
	assert.False(t, ok, "the loader never writes into gallery folders")
}

func TestLoaderReportsMissingPage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	meta := testsupport.SimpleGallery(23, 1)
	fetcher := testsupport.NewFakeFetcher(meta)
	q := pagefetch.NewQueue()
	defer q.Close()
	loader := pagefetch.NewLoader(cfg, q, fetcher, nil)

	_, err := loader.Load(context.Background(), pagefetch.PageRequest{GalleryID: 23, MediaID: meta.MediaID, Page: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNotFound))
	assert.Len(t, fetcher.FetchedPages(23), len(cfg.Download.Extensions))
}

func TestLoaderValidatesRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := pagefetch.NewQueue()
	defer q.Close()
	loader := pagefetch.NewLoader(cfg, q, testsupport.NewFakeFetcher(), nil)

	_, err := loader.Load(context.Background(), pagefetch.PageRequest{GalleryID: 0, Page: 1})
	assert.True(t, errors.Is(err, services.ErrValidation))
	_, err = loader.Load(context.Background(), pagefetch.PageRequest{GalleryID: 1, Page: 1, Options: render.Options{Rotation: 30}})
	assert.True(t, errors.Is(err, services.ErrValidation))
	_, err = loader.Load(context.Background(), pagefetch.PageRequest{GalleryID: 1, Page: 1})
	assert.True(t, errors.Is(err, services.ErrTransient), "unknown media id without a local page")
}

func TestLoaderServesRepeatViewsFromCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	meta := testsupport.SimpleGallery(24, 3)
	fetcher := testsupport.NewFakeFetcher(meta)
	q := pagefetch.NewQueue()
	defer q.Close()
	loader := pagefetch.NewLoader(cfg, q, fetcher, nil)
	req := pagefetch.PageRequest{GalleryID: 24, MediaID: meta.MediaID, Page: 3, Hint: "jpg"}

	first, err := loader.Load(context.Background(), req)
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, []int{3}, fetcher.FetchedPages(24))
	stats, err := loader.Cache().Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}
