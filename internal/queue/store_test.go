package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"galleryd/internal/queue"
	"galleryd/internal/testsupport"
)

func TestUpsertInsertsAndMerges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.SeedEntry(t, store, &queue.Entry{ID: 10, Status: queue.StatusPendingMetadata, RangeStart: 2, RangeEnd: 4})
	if first.Title != "" || first.RangeStart != 2 || first.RangeEnd != 4 {
		t.Fatalf("unexpected stored entry %#v", first)
	}

	time.Sleep(2 * time.Millisecond)
	update := &queue.Entry{
		ID:         10,
		Title:      "Resolved",
		Status:     queue.StatusPaused,
		MediaID:    "55",
		PageCount:  3,
		Extensions: []string{"jpg", "png", "webp"},
	}
	if err := store.Upsert(ctx, update); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := store.GetByID(ctx, 10)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Resolved" || got.Status != queue.StatusPaused || got.PageCount != 3 {
		t.Fatalf("update not applied: %#v", got)
	}
	if len(got.Extensions) != 3 || got.Extensions[2] != "webp" {
		t.Fatalf("unexpected extensions %v", got.Extensions)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", first.CreatedAt, got.CreatedAt)
	}
	if !got.MetadataResolved() {
		t.Fatal("expected metadata to be resolved")
	}

	all, err := store.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected exactly one row, got %d err=%v", len(all), err)
	}
}

func TestUpsertRejectsInvalidEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, id := range []int64{0, -3} {
		if err := store.Upsert(ctx, &queue.Entry{ID: id, Status: queue.StatusPaused}); !errors.Is(err, queue.ErrInvalidID) {
			t.Fatalf("id %d: expected ErrInvalidID, got %v", id, err)
		}
	}
	if err := store.Upsert(ctx, &queue.Entry{ID: 1, Status: "bogus"}); err == nil {
		t.Fatal("expected unknown status error")
	}
	if got, err := store.GetByID(ctx, 999); err != nil || got != nil {
		t.Fatalf("missing id should return nil, nil; got %#v %v", got, err)
	}
}

func TestLoadAllSkipsTerminalEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	statuses := []queue.Status{
		queue.StatusPendingMetadata,
		queue.StatusDownloading,
		queue.StatusCompleted,
		queue.StatusFailed,
		queue.StatusPaused,
	}
	for i, status := range statuses {
		testsupport.SeedEntry(t, store, &queue.Entry{ID: int64(i + 1), Status: status})
		time.Sleep(time.Millisecond)
	}

	entries, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	var ids []int64
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 5 {
		t.Fatalf("unexpected active ids %v", ids)
	}

	failed, err := store.List(ctx, queue.StatusFailed)
	if err != nil || len(failed) != 1 || failed[0].ID != 4 {
		t.Fatalf("unexpected failed list %v err=%v", failed, err)
	}
}

func TestResetInFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedEntry(t, store, &queue.Entry{ID: 1, Status: queue.StatusDownloading, PageCount: 2})
	testsupport.SeedEntry(t, store, &queue.Entry{ID: 2, Status: queue.StatusDownloadingData})
	testsupport.SeedEntry(t, store, &queue.Entry{ID: 3, Status: queue.StatusCompleted})

	reset, err := store.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("ResetInFlight: %v", err)
	}
	if reset != 2 {
		t.Fatalf("expected 2 rows reset, got %d", reset)
	}

	want := map[int64]queue.Status{
		1: queue.StatusPaused,
		2: queue.StatusPendingMetadata,
		3: queue.StatusCompleted,
	}
	for id, status := range want {
		got, err := store.GetByID(ctx, id)
		if err != nil || got.Status != status {
			t.Fatalf("id %d: expected %s, got %#v err=%v", id, status, got, err)
		}
	}
}

func TestFinalizeClearsRangeAndStoresSizes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedEntry(t, store, &queue.Entry{ID: 8, Status: queue.StatusDownloading, RangeStart: 2, RangeEnd: 5, PageCount: 9, ErrorMessage: "old"})

	if err := store.Finalize(ctx, 8, 4, 4096); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	got, err := store.GetByID(ctx, 8)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusCompleted || got.RangeStart != 0 || got.RangeEnd != 0 {
		t.Fatalf("unexpected finalized entry %#v", got)
	}
	if got.PagesDownloaded != 4 || got.BytesDownloaded != 4096 || got.ErrorMessage != "" {
		t.Fatalf("unexpected sizes %#v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at")
	}

	if err := store.Finalize(ctx, 99, 1, 1); err == nil {
		t.Fatal("expected error finalizing a missing entry")
	}
}

func TestUpdateStatusAndProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedEntry(t, store, &queue.Entry{ID: 4, Status: queue.StatusPaused, PageCount: 3})

	ok, err := store.UpdateStatus(ctx, 4, queue.StatusFailed, "gallery removed")
	if err != nil || !ok {
		t.Fatalf("UpdateStatus: ok=%v err=%v", ok, err)
	}
	if err := store.UpdateProgress(ctx, 4, 2, 200); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ := store.GetByID(ctx, 4)
	if got.Status != queue.StatusFailed || got.ErrorMessage != "gallery removed" || got.PagesDownloaded != 2 || got.BytesDownloaded != 200 {
		t.Fatalf("unexpected entry %#v", got)
	}

	ok, err = store.UpdateStatus(ctx, 404, queue.StatusPaused, "")
	if err != nil || ok {
		t.Fatalf("missing row: ok=%v err=%v", ok, err)
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedEntry(t, store, &queue.Entry{ID: 1, Status: queue.StatusFailed, PageCount: 4, ErrorMessage: "boom"})
	testsupport.SeedEntry(t, store, &queue.Entry{ID: 2, Status: queue.StatusFailed})
	testsupport.SeedEntry(t, store, &queue.Entry{ID: 3, Status: queue.StatusFailed})

	n, err := store.RetryFailed(ctx, 1, 2)
	if err != nil || n != 2 {
		t.Fatalf("RetryFailed: n=%d err=%v", n, err)
	}
	one, _ := store.GetByID(ctx, 1)
	two, _ := store.GetByID(ctx, 2)
	three, _ := store.GetByID(ctx, 3)
	if one.Status != queue.StatusPaused || one.ErrorMessage != "" {
		t.Fatalf("resolved entry should resume paused: %#v", one)
	}
	if two.Status != queue.StatusPendingMetadata {
		t.Fatalf("unresolved entry should restart metadata: %#v", two)
	}
	if three.Status != queue.StatusFailed {
		t.Fatalf("entry 3 should stay failed: %#v", three)
	}

	n, err = store.RetryFailed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed all: n=%d err=%v", n, err)
	}
}

func TestClearAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedEntry(t, store, &queue.Entry{ID: 1, Status: queue.StatusCompleted})
	testsupport.SeedEntry(t, store, &queue.Entry{ID: 2, Status: queue.StatusFailed})
	testsupport.SeedEntry(t, store, &queue.Entry{ID: 3, Status: queue.StatusDownloading})
	testsupport.SeedEntry(t, store, &queue.Entry{ID: 4, Status: queue.StatusPendingMetadata})

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 4 || health.Completed != 1 || health.Failed != 1 || health.Active != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health %#v", health)
	}

	if n, err := store.ClearCompleted(ctx); err != nil || n != 1 {
		t.Fatalf("ClearCompleted: n=%d err=%v", n, err)
	}
	if n, err := store.ClearFailed(ctx); err != nil || n != 1 {
		t.Fatalf("ClearFailed: n=%d err=%v", n, err)
	}
	removed, err := store.Delete(ctx, 3)
	if err != nil || !removed {
		t.Fatalf("Delete: removed=%v err=%v", removed, err)
	}
	if removed, _ := store.Delete(ctx, 3); removed {
		t.Fatal("second delete should report nothing removed")
	}
	if n, err := store.Clear(ctx); err != nil || n != 1 {
		t.Fatalf("Clear: n=%d err=%v", n, err)
	}
}

func TestCheckHealthReportsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health %#v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns %v", health.MissingColumns)
	}
	if store.Path() != cfg.QueueDBPath() {
		t.Fatalf("unexpected db path %s", store.Path())
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := queue.ParseStatus(" Paused ")
	if !ok || status != queue.StatusPaused {
		t.Fatalf("ParseStatus: %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("unknown status should not parse")
	}
	if !queue.StatusFailed.IsTerminal() || queue.StatusPaused.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
	if !queue.StatusDownloadingData.NeedsMetadata() || queue.StatusDownloading.NeedsMetadata() {
		t.Fatal("unexpected metadata classification")
	}
}
