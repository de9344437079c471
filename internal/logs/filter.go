package logs

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"galleryd/internal/logging"
	"galleryd/internal/textutil"
)

// Filter narrows log lines. Zero fields match everything.
type Filter struct {
	GalleryID int64
	Component string
	MinLevel  string
	Search    string
}

// Empty reports whether the filter matches every line.
func (f Filter) Empty() bool {
	return f.GalleryID == 0 &&
		strings.TrimSpace(f.Component) == "" &&
		strings.TrimSpace(f.MinLevel) == "" &&
		strings.TrimSpace(f.Search) == ""
}

// Match reports whether line passes the filter. JSON lines are matched by
// field; console lines by their key=value and "component:" text.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	if !textutil.ContainsFold(line, f.Search) {
		return false
	}
	var record map[string]any
	if strings.HasPrefix(strings.TrimSpace(line), "{") && json.Unmarshal([]byte(line), &record) == nil {
		return f.matchRecord(record)
	}
	return f.matchConsole(line)
}

func (f Filter) matchRecord(record map[string]any) bool {
	if f.GalleryID != 0 {
		id, ok := record[logging.FieldGalleryID].(float64)
		if !ok || int64(id) != f.GalleryID {
			return false
		}
	}
	if component := strings.TrimSpace(f.Component); component != "" {
		value, _ := record[logging.FieldComponent].(string)
		if !strings.EqualFold(value, component) {
			return false
		}
	}
	if f.MinLevel != "" {
		value, _ := record[slog.LevelKey].(string)
		if levelOf(value) < levelOf(f.MinLevel) {
			return false
		}
	}
	return true
}

func (f Filter) matchConsole(line string) bool {
	fields := strings.Fields(line)
	if f.GalleryID != 0 && !slices.Contains(fields, logging.FieldGalleryID+"="+strconv.FormatInt(f.GalleryID, 10)) {
		return false
	}
	if component := strings.TrimSpace(f.Component); component != "" && !slices.Contains(fields, component+":") {
		return false
	}
	if f.MinLevel != "" {
		if len(fields) < 2 || levelOf(fields[1]) < levelOf(f.MinLevel) {
			return false
		}
	}
	return true
}

func levelOf(value string) slog.Level {
	var level slog.Level
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "WARNING" {
		value = "WARN"
	}
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return level
}
