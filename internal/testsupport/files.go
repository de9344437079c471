package testsupport

import (
	"os"
	"testing"

	"galleryd/internal/gallery"
)

// WritePage creates a present page artifact of size bytes for gallery id.
// A size <= 0 writes a single byte.
func WritePage(t testing.TB, root string, id int64, page int, ext string, size int) string {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	folder := gallery.NewFolder(root, id)
	if err := os.MkdirAll(folder.Dir(), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", folder.Dir(), err)
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = 0x42
	}
	path := folder.PagePath(page, ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
