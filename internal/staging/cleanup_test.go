package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"galleryd/internal/logging"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestCleanPartialsInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanPartials(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q, got %+v", dir, result)
		}
	}
}

func TestCleanPartialsRemovesOnlyOldPartials(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "177013", ".3.jpg.123.part")
	fresh := filepath.Join(root, "177013", ".4.jpg.456.part")
	page := filepath.Join(root, "177013", "1.jpg")
	deep := filepath.Join(root, "177013", "nested", ".x.part")
	touch(t, stale, 2*time.Hour)
	touch(t, fresh, time.Minute)
	touch(t, page, 2*time.Hour)
	touch(t, deep, 2*time.Hour)

	result := CleanPartials(context.Background(), root, time.Hour, nil)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
	for _, keep := range []string{fresh, page, deep} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("expected %s to survive: %v", keep, err)
		}
	}
}

func TestIsPartial(t *testing.T) {
	cases := map[string]bool{
		".1.jpg.999.part": true,
		"1.jpg":           false,
		"notes.part":      false,
		".hidden":         false,
	}
	for name, want := range cases {
		if got := IsPartial(name); got != want {
			t.Errorf("IsPartial(%q) = %v, want %v", name, got, want)
		}
	}
}
