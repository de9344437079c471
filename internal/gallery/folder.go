package gallery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"galleryd/internal/fileutil"
	"galleryd/internal/services"
)

// Folder addresses one gallery's directory under the download root.
type Folder struct {
	Root string
	ID   int64
}

// NewFolder returns the folder for id under root.
func NewFolder(root string, id int64) Folder {
	return Folder{Root: root, ID: id}
}

// Dir is the gallery directory path.
func (f Folder) Dir() string {
	return filepath.Join(f.Root, strconv.FormatInt(f.ID, 10))
}

// PagePath is the artifact path for a page with the given extension.
func (f Folder) PagePath(page int, ext string) string {
	return filepath.Join(f.Dir(), fmt.Sprintf("%03d.%s", page, ext))
}

// ExtensionOf returns the lowercase extension of a page path without the dot.
func ExtensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// FindPage looks for a present artifact for page, trying the hinted extension
// first and then every other known one.
func (f Folder) FindPage(page int, hint string) (string, int64, bool, error) {
	for _, ext := range candidateOrder(hint) {
		path := f.PagePath(page, ext)
		ok, size, err := fileutil.NonEmpty(path)
		if err != nil {
			return "", 0, false, services.Wrap(services.ErrLocalIO, "download", "stat page", path, err)
		}
		if ok {
			return path, size, true, nil
		}
	}
	return "", 0, false, nil
}

// WritePage stores page bytes atomically and returns the final path.
func (f Folder) WritePage(page int, ext string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", services.Wrap(services.ErrTransient, "download", "write page", fmt.Sprintf("page %d body is empty", page), nil)
	}
	path := f.PagePath(page, ext)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrLocalIO, "download", "write page", path, err)
	}
	return path, nil
}

// PresentPages lists present page paths in [start, end], in page order.
func (f Folder) PresentPages(start, end int, extensions []string) ([]string, error) {
	var paths []string
	for page := start; page <= end; page++ {
		path, _, ok, err := f.FindPage(page, ExtensionHint(extensions, page))
		if err != nil {
			return nil, err
		}
		if ok {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// Exists reports whether the gallery directory is present.
func (f Folder) Exists() (bool, error) {
	info, err := os.Stat(f.Dir())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func candidateOrder(hint string) []string {
	order := []string{ExtJPG, ExtPNG, ExtWEBP, ExtGIF}
	if !KnownExtension(hint) {
		return order
	}
	out := []string{hint}
	for _, ext := range order {
		if ext != hint {
			out = append(out, ext)
		}
	}
	return out
}

// ScanFolders returns the ids of numeric gallery directories under root.
func ScanFolders(root string) ([]int64, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read download dir: %w", err)
	}
	var ids []int64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
