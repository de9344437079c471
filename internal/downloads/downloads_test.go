package downloads_test

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"

	"galleryd/internal/config"
	"galleryd/internal/downloads"
	"galleryd/internal/gallery"
	"galleryd/internal/notifications"
	"galleryd/internal/queue"
	"galleryd/internal/remote"
	"galleryd/internal/services"
	"galleryd/internal/testsupport"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type fixture struct {
	cfg      *config.Config
	store    *queue.Store
	fetcher  *testsupport.FakeFetcher
	notifier *recordingNotifier
	deps     downloads.Deps
}

func newFixture(t *testing.T, galleries ...gallery.Metadata) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fetcher := testsupport.NewFakeFetcher(galleries...)
	notifier := &recordingNotifier{}
	return &fixture{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		deps: downloads.Deps{
			Store:    store,
			Fetcher:  fetcher,
			Notifier: notifier,
			Root:     cfg.Paths.DownloadDir,
		},
	}
}

func (f *fixture) stored(t *testing.T, id int64) *queue.Entry {
	t.Helper()
	entry, err := f.store.GetByID(context.Background(), id)
	if err != nil || entry == nil {
		t.Fatalf("GetByID(%d): %#v %v", id, entry, err)
	}
	return entry
}

func resolvedEntry(meta gallery.Metadata) queue.Entry {
	return queue.Entry{
		ID:         meta.ID,
		Title:      meta.Titles.Display(),
		Status:     queue.StatusPaused,
		MediaID:    meta.MediaID,
		PageCount:  meta.PageCount,
		Extensions: meta.Extensions,
	}
}

func TestMergeIntoUpdatesUnlessDownloading(t *testing.T) {
	existing := queue.Entry{ID: 1, Title: "Old", Thumbnail: "old.jpg", RangeStart: 1, RangeEnd: 5, Status: queue.StatusPaused}
	res := downloads.MergeInto(&existing, queue.Entry{ID: 1, RangeStart: 2, RangeEnd: 3, Title: "New"})
	if res != downloads.AddMerged {
		t.Fatalf("expected merge, got %s", res)
	}
	if existing.Title != "New" || existing.Thumbnail != "old.jpg" || existing.RangeStart != 2 || existing.RangeEnd != 3 {
		t.Fatalf("unexpected merged entry %#v", existing)
	}

	existing.Status = queue.StatusDownloading
	res = downloads.MergeInto(&existing, queue.Entry{ID: 1, RangeStart: 9, Title: "Dropped"})
	if res != downloads.AddIgnored {
		t.Fatalf("expected ignored, got %s", res)
	}
	if existing.Title != "New" || existing.RangeStart != 2 {
		t.Fatalf("downloading entry must not change: %#v", existing)
	}
}

func TestQueueAddNeverDuplicates(t *testing.T) {
	q := downloads.NewQueue(downloads.Deps{})

	for i, title := range []string{"a", "b", "c"} {
		res, err := q.Add(queue.Entry{ID: 7, Title: title, RangeStart: i + 1})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		want := downloads.AddMerged
		if i == 0 {
			want = downloads.AddInserted
		}
		if res != want {
			t.Fatalf("add %d: expected %s, got %s", i, want, res)
		}
	}
	snapshot := q.Snapshot()
	if len(snapshot) != 1 || q.Len() != 1 {
		t.Fatalf("expected one entry, got %d", len(snapshot))
	}
	if snapshot[0].Title != "c" || snapshot[0].RangeStart != 3 {
		t.Fatalf("expected most recent update, got %#v", snapshot[0])
	}

	if _, err := q.Add(queue.Entry{ID: 0}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for id 0, got %v", err)
	}
	if _, err := q.Add(queue.Entry{ID: -4}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for negative id, got %v", err)
	}
}

// Re-adding an id that is mid-download is ignored without restarting it. The
// caller learns this only through AddIgnored.
func TestQueueAddIgnoresDownloadingEntry(t *testing.T) {
	meta := testsupport.SimpleGallery(3, 2)
	f := newFixture(t, meta)
	q := downloads.NewQueue(f.deps)
	if _, err := q.Add(resolvedEntry(meta)); err != nil {
		t.Fatal(err)
	}
	d, _ := q.Get(3)

	var res downloads.AddResult
	f.fetcher.PageHook = func(ref remote.PageRef, _ string) {
		if ref.Page == 1 {
			res, _ = q.Add(queue.Entry{ID: 3, Title: "Renamed", RangeStart: 2})
		}
	}
	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res != downloads.AddIgnored {
		t.Fatalf("expected AddIgnored while downloading, got %s", res)
	}
	if got := f.fetcher.FetchedPages(3); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("in-flight download should not restart, fetched %v", got)
	}
	if d.Entry().Title == "Renamed" {
		t.Fatal("ignored add must not change the title")
	}
}

func TestFetchSkipsUnresolvedAndIsFIFO(t *testing.T) {
	q := downloads.NewQueue(downloads.Deps{})
	mustAdd(t, q, queue.Entry{ID: 1, Status: queue.StatusPendingMetadata})
	mustAdd(t, q, resolvedEntry(testsupport.SimpleGallery(2, 1)))
	mustAdd(t, q, resolvedEntry(testsupport.SimpleGallery(3, 1)))

	d, ok := q.Fetch()
	if !ok || d.ID() != 2 {
		t.Fatalf("expected first resolved entry 2, got %v", d)
	}
	again, _ := q.Fetch()
	if again != d {
		t.Fatal("Fetch must not remove the entry")
	}
	q.Complete(2)
	d, ok = q.Fetch()
	if !ok || d.ID() != 3 {
		t.Fatalf("expected entry 3 after completing 2, got %v", d)
	}
	q.Complete(3)
	if d, ok := q.Fetch(); ok {
		t.Fatalf("unresolved entry must never be fetched, got %d", d.ID())
	}
}

func TestFetchForDataClaimsOnlyUnresolved(t *testing.T) {
	q := downloads.NewQueue(downloads.Deps{})
	mustAdd(t, q, resolvedEntry(testsupport.SimpleGallery(1, 1)))
	mustAdd(t, q, queue.Entry{ID: 2, Status: queue.StatusPendingMetadata})
	mustAdd(t, q, queue.Entry{ID: 3, Status: queue.StatusDownloadingData})

	first, ok := q.FetchForData()
	if !ok || first.ID() != 2 {
		t.Fatalf("expected entry 2, got %v", first)
	}
	second, ok := q.FetchForData()
	if !ok || second.ID() != 3 {
		t.Fatalf("expected entry 3, got %v", second)
	}
	if _, ok := q.FetchForData(); ok {
		t.Fatal("expected data view to be exhausted")
	}
	if q.Len() != 3 {
		t.Fatalf("content-ready entries must stay queued, len=%d", q.Len())
	}

	q.ReleaseData(2)
	again, ok := q.FetchForData()
	if !ok || again.ID() != 2 {
		t.Fatalf("expected released entry 2, got %v", again)
	}
}

func TestRestoreAfterCrashYieldsPaused(t *testing.T) {
	meta := testsupport.SimpleGallery(11, 3)
	f := newFixture(t, meta)
	ctx := context.Background()

	crashed := resolvedEntry(meta)
	crashed.Status = queue.StatusDownloading
	testsupport.SeedEntry(t, f.store, &crashed)
	testsupport.SeedEntry(t, f.store, &queue.Entry{ID: 12, Status: queue.StatusDownloadingData})
	testsupport.SeedEntry(t, f.store, &queue.Entry{ID: 13, Status: queue.StatusCompleted})

	rows, err := f.store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	restored := downloads.Restore(rows)
	if len(restored) != 2 {
		t.Fatalf("expected 2 restored entries, got %d", len(restored))
	}
	for _, entry := range restored {
		if entry.Status != queue.StatusPaused {
			t.Fatalf("entry %d restored as %s", entry.ID, entry.Status)
		}
	}

	q := downloads.NewQueue(f.deps)
	for _, entry := range restored {
		mustAdd(t, q, entry)
	}
	if d, ok := q.Fetch(); !ok || d.ID() != 11 {
		t.Fatalf("expected resolved entry 11 to be content-ready")
	}
	if d, ok := q.FetchForData(); !ok || d.ID() != 12 {
		t.Fatalf("expected unresolved entry 12 back in the data phase")
	}
}

func TestDownloadGalleryDataIsIdempotent(t *testing.T) {
	meta := testsupport.SimpleGallery(21, 4)
	f := newFixture(t, meta)
	d := downloads.NewDownloader(queue.Entry{ID: 21, Status: queue.StatusPendingMetadata}, f.deps)
	ctx := context.Background()

	if err := d.DownloadGalleryData(ctx); err != nil {
		t.Fatalf("first DownloadGalleryData: %v", err)
	}
	firstMeta, _ := d.Metadata()
	if err := d.DownloadGalleryData(ctx); err != nil {
		t.Fatalf("second DownloadGalleryData: %v", err)
	}
	secondMeta, _ := d.Metadata()

	if calls := f.fetcher.MetadataCallCount(21); calls != 1 {
		t.Fatalf("expected one metadata request, got %d", calls)
	}
	if !reflect.DeepEqual(firstMeta, secondMeta) {
		t.Fatalf("metadata changed between calls: %#v vs %#v", firstMeta, secondMeta)
	}

	row := f.stored(t, 21)
	if row.Status != queue.StatusPaused || row.PageCount != 4 || row.Title != "Gallery 21" || row.MediaID != "m21" {
		t.Fatalf("unexpected persisted row %#v", row)
	}
	if _, ok, err := d.Folder().ReadSidecar(); err != nil || !ok {
		t.Fatalf("expected sidecar, ok=%v err=%v", ok, err)
	}
}

func TestDownloadGalleryDataConcurrentCallersShareOneFetch(t *testing.T) {
	meta := testsupport.SimpleGallery(22, 2)
	f := newFixture(t, meta)
	d := downloads.NewDownloader(queue.Entry{ID: 22}, f.deps)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.DownloadGalleryData(context.Background()); err != nil {
				t.Errorf("DownloadGalleryData: %v", err)
			}
		}()
	}
	wg.Wait()
	if calls := f.fetcher.MetadataCallCount(22); calls != 1 {
		t.Fatalf("expected one metadata request, got %d", calls)
	}
}

func TestDownloadGalleryDataTransientKeepsPending(t *testing.T) {
	meta := testsupport.SimpleGallery(23, 2)
	f := newFixture(t, meta)
	f.fetcher.MetadataErr[23] = services.Wrap(services.ErrTransient, "metadata", "fetch", "timeout", nil)
	d := downloads.NewDownloader(queue.Entry{ID: 23}, f.deps)

	err := d.DownloadGalleryData(context.Background())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if d.Status() != queue.StatusPendingMetadata || d.MetadataResolved() {
		t.Fatalf("expected pending metadata, got %s", d.Status())
	}
	if row := f.stored(t, 23); row.Status != queue.StatusPendingMetadata {
		t.Fatalf("unexpected persisted status %s", row.Status)
	}

	delete(f.fetcher.MetadataErr, 23)
	if err := d.DownloadGalleryData(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !d.MetadataResolved() {
		t.Fatal("expected metadata resolved after retry")
	}
}

func TestDownloadGalleryDataMissingGalleryFails(t *testing.T) {
	f := newFixture(t)
	d := downloads.NewDownloader(queue.Entry{ID: 404}, f.deps)

	err := d.DownloadGalleryData(context.Background())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if d.Status() != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", d.Status())
	}
	row := f.stored(t, 404)
	if row.Status != queue.StatusFailed || row.ErrorMessage == "" {
		t.Fatalf("failed row should keep the reason: %#v", row)
	}
	if f.notifier.count(notifications.EventDownloadFailed) != 1 {
		t.Fatal("expected one failure notification")
	}
}

func TestDownloadGalleryDataRangeBeyondPagesFails(t *testing.T) {
	meta := testsupport.SimpleGallery(24, 3)
	f := newFixture(t, meta)
	d := downloads.NewDownloader(queue.Entry{ID: 24, RangeStart: 9}, f.deps)

	if err := d.DownloadGalleryData(context.Background()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if d.Status() != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", d.Status())
	}
}

func TestDownloadResumesFromFirstMissingPage(t *testing.T) {
	meta := testsupport.SimpleGallery(31, 5)
	f := newFixture(t, meta)
	for page := 1; page <= 3; page++ {
		testsupport.WritePage(t, f.cfg.Paths.DownloadDir, 31, page, "jpg", 10)
	}
	entry := resolvedEntry(meta)
	testsupport.SeedEntry(t, f.store, &entry)
	d := downloads.NewDownloader(entry, f.deps)

	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := f.fetcher.FetchedPages(31); !reflect.DeepEqual(got, []int{4, 5}) {
		t.Fatalf("expected only pages 4 and 5 fetched, got %v", got)
	}
	if d.Status() != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", d.Status())
	}
	row := f.stored(t, 31)
	if row.Status != queue.StatusCompleted || row.PagesDownloaded != 5 || row.CompletedAt == nil {
		t.Fatalf("unexpected finalized row %#v", row)
	}
	if f.notifier.count(notifications.EventDownloadProgress) != 5 || f.notifier.count(notifications.EventDownloadCompleted) != 1 {
		t.Fatalf("unexpected notifications %v", f.notifier.events)
	}
}

func TestDownloadRefetchesEmptyPages(t *testing.T) {
	meta := testsupport.SimpleGallery(32, 2)
	f := newFixture(t, meta)
	testsupport.WritePage(t, f.cfg.Paths.DownloadDir, 32, 1, "jpg", 10)
	folder := gallery.NewFolder(f.cfg.Paths.DownloadDir, 32)
	if err := os.WriteFile(folder.PagePath(2, "jpg"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	d := downloads.NewDownloader(resolvedEntry(meta), f.deps)

	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := f.fetcher.FetchedPages(32); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("expected empty page 2 to be refetched, got %v", got)
	}
}

func TestDownloadTransientFailureParksAndResumes(t *testing.T) {
	meta := testsupport.SimpleGallery(33, 4)
	f := newFixture(t, meta)
	f.fetcher.FailPage(33, 3, services.Wrap(services.ErrTransient, "download", "fetch page", "reset", nil))
	d := downloads.NewDownloader(resolvedEntry(meta), f.deps)

	err := d.Download(context.Background())
	if !services.Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if d.Status() != queue.StatusPaused {
		t.Fatalf("expected paused, got %s", d.Status())
	}
	if got := f.fetcher.FetchedPages(33); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("step should stop at the failing page, fetched %v", got)
	}
	if row := f.stored(t, 33); row.Status != queue.StatusPaused || row.PagesDownloaded != 2 {
		t.Fatalf("unexpected parked row %#v", row)
	}

	f.fetcher.ClearPageErrors()
	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := f.fetcher.FetchedPages(33); !reflect.DeepEqual(got, []int{1, 2, 3, 3, 4}) {
		t.Fatalf("resume should fetch only missing pages, fetched %v", got)
	}
	if d.Status() != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", d.Status())
	}
}

func TestDownloadFatalPageFailureFails(t *testing.T) {
	meta := testsupport.SimpleGallery(34, 3)
	f := newFixture(t, meta)
	f.fetcher.FailPage(34, 2, services.Wrap(services.ErrNotFound, "download", "fetch page", "gone", nil))
	d := downloads.NewDownloader(resolvedEntry(meta), f.deps)

	if err := d.Download(context.Background()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if d.Status() != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", d.Status())
	}
	if f.notifier.count(notifications.EventDownloadFailed) != 1 {
		t.Fatal("expected failure notification")
	}
}

func TestDownloadHonorsRange(t *testing.T) {
	meta := testsupport.SimpleGallery(35, 6)
	f := newFixture(t, meta)
	entry := resolvedEntry(meta)
	entry.RangeStart, entry.RangeEnd = 2, 3
	testsupport.SeedEntry(t, f.store, &entry)
	d := downloads.NewDownloader(entry, f.deps)

	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := f.fetcher.FetchedPages(35); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Fatalf("expected pages 2 and 3, got %v", got)
	}
	if row := f.stored(t, 35); row.RangeStart != 0 || row.RangeEnd != 0 {
		t.Fatalf("finalize should clear the range: %#v", row)
	}
}

func TestDownloadUsesRangeMergedBeforeStepStarts(t *testing.T) {
	meta := testsupport.SimpleGallery(38, 5)
	f := newFixture(t, meta)
	q := downloads.NewQueue(f.deps)
	entry := resolvedEntry(meta)
	entry.RangeStart, entry.RangeEnd = 1, 2
	mustAdd(t, q, entry)
	d, _ := q.Fetch()

	var (
		fired  bool
		merged downloads.AddResult
	)
	restore := downloads.SetStepStartHookForTests(func(id int64) {
		if id == 38 && !fired {
			fired = true
			merged, _ = q.Add(queue.Entry{ID: 38, RangeStart: 4, RangeEnd: 5})
		}
	})
	defer restore()

	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if merged != downloads.AddMerged {
		t.Fatalf("expected the add to merge, got %s", merged)
	}
	if got := f.fetcher.FetchedPages(38); !reflect.DeepEqual(got, []int{4, 5}) {
		t.Fatalf("expected the merged range 4-5, got %v", got)
	}
}

func TestDownloadLocalIOFailureIsolatesEntry(t *testing.T) {
	broken := testsupport.SimpleGallery(70, 2)
	healthy := testsupport.SimpleGallery(71, 2)
	f := newFixture(t, broken, healthy)
	if err := os.MkdirAll(f.cfg.Paths.DownloadDir, 0o755); err != nil {
		t.Fatal(err)
	}
	blocker := gallery.NewFolder(f.cfg.Paths.DownloadDir, 70).Dir()
	if err := os.WriteFile(blocker, []byte("not a folder"), 0o644); err != nil {
		t.Fatal(err)
	}
	brokenEntry, healthyEntry := resolvedEntry(broken), resolvedEntry(healthy)
	testsupport.SeedEntry(t, f.store, &brokenEntry)
	testsupport.SeedEntry(t, f.store, &healthyEntry)

	bad := downloads.NewDownloader(brokenEntry, f.deps)
	if err := bad.Download(context.Background()); !errors.Is(err, services.ErrLocalIO) {
		t.Fatalf("expected local io error, got %v", err)
	}
	if row := f.stored(t, 70); row.Status != queue.StatusFailed || row.ErrorMessage == "" {
		t.Fatalf("expected failed row with message, got %#v", row)
	}
	if services.Retryable(services.Wrap(services.ErrLocalIO, "download", "write page", "", nil)) {
		t.Fatal("local io failures must not be retried")
	}

	good := downloads.NewDownloader(healthyEntry, f.deps)
	if err := good.Download(context.Background()); err != nil {
		t.Fatalf("healthy gallery: %v", err)
	}
	if good.Status() != queue.StatusCompleted {
		t.Fatalf("expected healthy gallery completed, got %s", good.Status())
	}
	content, err := os.ReadFile(blocker)
	if err != nil || string(content) != "not a folder" {
		t.Fatalf("blocking file changed: %q %v", content, err)
	}
}

type failingNotifier struct{}

func (failingNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return errors.New("ntfy unreachable")
}

func TestNotifierErrorsNeverFailDownload(t *testing.T) {
	meta := testsupport.SimpleGallery(72, 3)
	f := newFixture(t, meta)
	deps := f.deps
	deps.Notifier = failingNotifier{}
	entry := resolvedEntry(meta)
	testsupport.SeedEntry(t, f.store, &entry)
	d := downloads.NewDownloader(entry, deps)

	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if d.Status() != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", d.Status())
	}
	if row := f.stored(t, 72); row.Status != queue.StatusCompleted || row.PagesDownloaded != 3 {
		t.Fatalf("unexpected row %#v", row)
	}
}

func TestRemoveStopsDownloadAfterCurrentPage(t *testing.T) {
	meta := testsupport.SimpleGallery(36, 5)
	f := newFixture(t, meta)
	q := downloads.NewQueue(f.deps)
	mustAdd(t, q, resolvedEntry(meta))
	d, _ := q.Fetch()

	f.fetcher.PageHook = func(ref remote.PageRef, _ string) {
		if ref.Page == 2 {
			q.Remove(36)
		}
	}
	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("cancelled download should stop cleanly, got %v", err)
	}
	if got := f.fetcher.FetchedPages(36); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("expected the current page to finish and nothing more, got %v", got)
	}
	if q.Len() != 0 {
		t.Fatal("removed entry should leave the queue")
	}
	if _, _, ok, _ := d.Folder().FindPage(2, "jpg"); !ok {
		t.Fatal("page in flight at removal should still be written")
	}
}

func TestPauseHoldsEntryUntilResume(t *testing.T) {
	meta := testsupport.SimpleGallery(37, 4)
	f := newFixture(t, meta)
	q := downloads.NewQueue(f.deps)
	mustAdd(t, q, resolvedEntry(meta))
	d, _ := q.Fetch()

	f.fetcher.PageHook = func(ref remote.PageRef, _ string) {
		if ref.Page == 1 {
			q.Pause(37)
		}
	}
	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("paused download should stop cleanly, got %v", err)
	}
	if row := f.stored(t, 37); row.Status != queue.StatusPaused || row.PagesDownloaded != 1 {
		t.Fatalf("expected paused row with one page, got %#v", row)
	}
	if _, ok := q.Fetch(); ok {
		t.Fatal("held entry must not be fetched")
	}

	f.fetcher.PageHook = nil
	q.Resume(37)
	d, ok := q.Fetch()
	if !ok {
		t.Fatal("resumed entry should be fetchable")
	}
	if err := d.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := f.fetcher.FetchedPages(37); !reflect.DeepEqual(got, []int{1, 2, 3, 4}) {
		t.Fatalf("expected each page fetched once, got %v", got)
	}
	if d.Status() != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", d.Status())
	}
}

func TestDownloadWithoutMetadataIsTransient(t *testing.T) {
	f := newFixture(t)
	d := downloads.NewDownloader(queue.Entry{ID: 50}, f.deps)
	if err := d.Download(context.Background()); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func mustAdd(t *testing.T, q *downloads.Queue, entry queue.Entry) {
	t.Helper()
	if _, err := q.Add(entry); err != nil {
		t.Fatalf("Add(%d): %v", entry.ID, err)
	}
}
