package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "001.jpg")

	if err := WriteFileAtomic(target, []byte("page"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "page" {
		t.Fatalf("content mismatch: got %q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the final file, got %d entries", len(entries))
	}
}

func TestWriteStreamAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "002.png")
	boom := errors.New("boom")

	err := WriteStreamAtomic(target, 0o644, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fill error, got %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp file cleanup, found %d entries", len(entries))
	}
}

func TestNonEmpty(t *testing.T) {
	dir := t.TempDir()

	ok, _, err := NonEmpty(filepath.Join(dir, "missing"))
	if err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}

	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, _, _ := NonEmpty(empty); ok {
		t.Fatal("empty file should not count")
	}

	full := filepath.Join(dir, "full")
	if err := os.WriteFile(full, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, size, err := NonEmpty(full)
	if err != nil || !ok || size != 3 {
		t.Fatalf("full file: ok=%v size=%d err=%v", ok, size, err)
	}

	if ok, _, _ := NonEmpty(dir); ok {
		t.Fatal("directory should not count")
	}
}
