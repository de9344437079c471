package gallery

import (
	"fmt"
	"strings"

	"galleryd/internal/services"
)

// Known page extensions.
const (
	ExtJPG  = "jpg"
	ExtPNG  = "png"
	ExtWEBP = "webp"
	ExtGIF  = "gif"
)

var extensionCodes = map[string]string{
	"j": ExtJPG,
	"p": ExtPNG,
	"w": ExtWEBP,
	"g": ExtGIF,
}

// ExtensionFromCode maps the single-letter type codes used by the remote API
// to file extensions.
func ExtensionFromCode(code string) (string, bool) {
	ext, ok := extensionCodes[strings.ToLower(strings.TrimSpace(code))]
	return ext, ok
}

// KnownExtension reports whether ext is one of the supported page formats.
func KnownExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ExtJPG, ExtPNG, ExtWEBP, ExtGIF:
		return true
	default:
		return false
	}
}

// Titles holds the title variants published for a gallery.
type Titles struct {
	English  string `json:"english,omitempty"`
	Japanese string `json:"japanese,omitempty"`
	Pretty   string `json:"pretty,omitempty"`
}

// Display returns the best title for humans: pretty, then english, then japanese.
func (t Titles) Display() string {
	for _, candidate := range []string{t.Pretty, t.English, t.Japanese} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

// Metadata is the resolved description of a gallery.
type Metadata struct {
	ID         int64    `json:"id"`
	MediaID    string   `json:"media_id"`
	Titles     Titles   `json:"titles"`
	PageCount  int      `json:"page_count"`
	Extensions []string `json:"extensions"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
}

// Validate rejects metadata that cannot drive a download.
func (m Metadata) Validate() error {
	if m.ID <= 0 {
		return services.Wrap(services.ErrValidation, "metadata", "validate", fmt.Sprintf("invalid gallery id %d", m.ID), nil)
	}
	if m.PageCount <= 0 {
		return services.Wrap(services.ErrValidation, "metadata", "validate", "gallery has no pages", nil)
	}
	if strings.TrimSpace(m.MediaID) == "" {
		return services.Wrap(services.ErrValidation, "metadata", "validate", "missing media id", nil)
	}
	if len(m.Extensions) != m.PageCount {
		return services.Wrap(services.ErrValidation, "metadata", "validate",
			fmt.Sprintf("%d extension hints for %d pages", len(m.Extensions), m.PageCount), nil)
	}
	for i, ext := range m.Extensions {
		if !KnownExtension(ext) {
			return services.Wrap(services.ErrValidation, "metadata", "validate",
				fmt.Sprintf("page %d has unknown extension %q", i+1, ext), nil)
		}
	}
	return nil
}

// ExtensionFor returns the hint for a 1-based page index, defaulting to jpg.
func (m Metadata) ExtensionFor(page int) string {
	return ExtensionHint(m.Extensions, page)
}

// ExtensionHint returns extensions[page-1] when known, otherwise jpg.
func ExtensionHint(extensions []string, page int) string {
	if page >= 1 && page <= len(extensions) && KnownExtension(extensions[page-1]) {
		return strings.ToLower(extensions[page-1])
	}
	return ExtJPG
}

// Range is an inclusive 1-based page range. Zero values mean "from the first
// page" and "through the last page".
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// IsWhole reports whether the range selects the entire gallery.
func (r Range) IsWhole() bool {
	return r.Start <= 1 && r.End == 0
}

// Check validates the range without knowing the page count.
func (r Range) Check() error {
	if r.Start < 0 || r.End < 0 {
		return services.Wrap(services.ErrValidation, "range", "check", "page range must not be negative", nil)
	}
	if r.End != 0 && r.Start > r.End {
		return services.Wrap(services.ErrValidation, "range", "check",
			fmt.Sprintf("start %d is after end %d", r.Start, r.End), nil)
	}
	return nil
}

// Resolve clamps the range to pageCount and returns concrete bounds.
func (r Range) Resolve(pageCount int) (int, int, error) {
	if err := r.Check(); err != nil {
		return 0, 0, err
	}
	if pageCount <= 0 {
		return 0, 0, services.Wrap(services.ErrValidation, "range", "resolve", "page count unknown", nil)
	}
	start, end := r.Start, r.End
	if start < 1 {
		start = 1
	}
	if end == 0 || end > pageCount {
		end = pageCount
	}
	if start > end {
		return 0, 0, services.Wrap(services.ErrValidation, "range", "resolve",
			fmt.Sprintf("start %d is beyond the last page %d", start, pageCount), nil)
	}
	return start, end, nil
}
