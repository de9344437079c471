package testsupport

import (
	"context"
	"fmt"
	"sync"

	"galleryd/internal/gallery"
	"galleryd/internal/remote"
	"galleryd/internal/services"
)

// FakeFetcher is an in-memory remote.Fetcher that records every call.
type FakeFetcher struct {
	mu sync.Mutex

	Galleries map[int64]gallery.Metadata
	// MetadataErr, when set, is returned by FetchMetadata for that id.
	MetadataErr map[int64]error
	// PageErr, when set, is returned for the 1-based page of a gallery.
	PageErr map[int64]map[int]error
	// PageHook runs before a page is served; tests use it to block or count.
	PageHook func(ref remote.PageRef, ext string)

	MetadataCalls map[int64]int
	PageCalls     []remote.PageRef
}

// NewFakeFetcher returns a fetcher serving the given galleries.
func NewFakeFetcher(galleries ...gallery.Metadata) *FakeFetcher {
	f := &FakeFetcher{
		Galleries:     make(map[int64]gallery.Metadata),
		MetadataErr:   make(map[int64]error),
		PageErr:       make(map[int64]map[int]error),
		MetadataCalls: make(map[int64]int),
	}
	for _, g := range galleries {
		f.Galleries[g.ID] = g
	}
	return f
}

// SimpleGallery builds valid metadata with pages jpg pages.
func SimpleGallery(id int64, pages int) gallery.Metadata {
	exts := make([]string, pages)
	for i := range exts {
		exts[i] = gallery.ExtJPG
	}
	return gallery.Metadata{
		ID:         id,
		MediaID:    fmt.Sprintf("m%d", id),
		Titles:     gallery.Titles{English: fmt.Sprintf("Gallery %d", id)},
		PageCount:  pages,
		Extensions: exts,
	}
}

// FailPage makes the given page return err.
func (f *FakeFetcher) FailPage(id int64, page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PageErr[id] == nil {
		f.PageErr[id] = make(map[int]error)
	}
	f.PageErr[id][page] = err
}

// ClearPageErrors removes every configured page failure.
func (f *FakeFetcher) ClearPageErrors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PageErr = make(map[int64]map[int]error)
}

// FetchMetadata implements remote.Fetcher.
func (f *FakeFetcher) FetchMetadata(ctx context.Context, id int64) (gallery.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MetadataCalls[id]++
	if err := ctx.Err(); err != nil {
		return gallery.Metadata{}, err
	}
	if err := f.MetadataErr[id]; err != nil {
		return gallery.Metadata{}, err
	}
	meta, ok := f.Galleries[id]
	if !ok {
		return gallery.Metadata{}, services.Wrap(services.ErrNotFound, "metadata", "fetch", fmt.Sprintf("gallery %d", id), nil)
	}
	return meta, nil
}

// FetchPage implements remote.Fetcher.
func (f *FakeFetcher) FetchPage(ctx context.Context, ref remote.PageRef, ext string) ([]byte, error) {
	f.mu.Lock()
	hook := f.PageHook
	f.mu.Unlock()
	if hook != nil {
		hook(ref, ext)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.PageCalls = append(f.PageCalls, ref)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.PageErr[ref.GalleryID][ref.Page]; err != nil {
		return nil, err
	}
	meta, ok := f.Galleries[ref.GalleryID]
	if !ok || ref.Page < 1 || ref.Page > meta.PageCount {
		return nil, services.Wrap(services.ErrNotFound, "download", "fetch page", fmt.Sprintf("page %d", ref.Page), nil)
	}
	if meta.ExtensionFor(ref.Page) != ext {
		return nil, services.Wrap(services.ErrNotFound, "download", "fetch page", fmt.Sprintf("page %d.%s", ref.Page, ext), nil)
	}
	return []byte(fmt.Sprintf("gallery-%d-page-%d", ref.GalleryID, ref.Page)), nil
}

// MetadataCallCount returns how many times FetchMetadata ran for id.
func (f *FakeFetcher) MetadataCallCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.MetadataCalls[id]
}

// FetchedPages returns the page numbers requested for id, in call order.
func (f *FakeFetcher) FetchedPages(id int64) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pages []int
	for _, ref := range f.PageCalls {
		if ref.GalleryID == id {
			pages = append(pages, ref.Page)
		}
	}
	return pages
}
