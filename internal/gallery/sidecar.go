package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"galleryd/internal/fileutil"
)

const (
	SidecarName       = ".gallery.json"
	legacySidecarName = ".nomedia"
)

// ReadSidecar loads metadata stored next to the pages. A legacy .nomedia file
// holding JSON is rewritten to .gallery.json and removed. The boolean is false
// when no sidecar exists.
func (f Folder) ReadSidecar() (Metadata, bool, error) {
	meta, ok, err := readMetadataFile(filepath.Join(f.Dir(), SidecarName))
	if err != nil || ok {
		return meta, ok, err
	}

	legacy := filepath.Join(f.Dir(), legacySidecarName)
	meta, ok, err = readMetadataFile(legacy)
	if err != nil || !ok {
		// An empty or non-JSON .nomedia is a plain media scanner marker.
		return Metadata{}, false, nil
	}
	if err := f.WriteSidecar(meta); err != nil {
		return Metadata{}, false, err
	}
	if err := os.Remove(legacy); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, false, fmt.Errorf("remove legacy sidecar: %w", err)
	}
	return meta, true, nil
}

// WriteSidecar persists metadata as .gallery.json.
func (f Folder) WriteSidecar(meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(f.Dir(), SidecarName), data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

func readMetadataFile(path string) (Metadata, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("read sidecar: %w", err)
	}
	if len(data) == 0 {
		return Metadata{}, false, nil
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false, fmt.Errorf("decode sidecar %s: %w", filepath.Base(path), err)
	}
	return meta, true, nil
}
