package testsupport

import (
	"context"
	"testing"

	"galleryd/internal/config"
	"galleryd/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedEntry persists entry and returns the stored row.
func SeedEntry(t testing.TB, store *queue.Store, entry *queue.Entry) *queue.Entry {
	t.Helper()

	ctx := context.Background()
	if err := store.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert(%d): %v", entry.ID, err)
	}
	stored, err := store.GetByID(ctx, entry.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID(%d): %v", entry.ID, err)
	}
	return stored
}
