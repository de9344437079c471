package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a gallery download.
type Status string

const (
	StatusPendingMetadata Status = "pending_metadata"
	StatusDownloadingData Status = "downloading_data"
	StatusPaused          Status = "paused"
	StatusDownloading     Status = "downloading"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

var allStatuses = []Status{
	StatusPendingMetadata,
	StatusDownloadingData,
	StatusPaused,
	StatusDownloading,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether the status ends the download lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NeedsMetadata reports whether the entry still waits on metadata resolution.
func (s Status) NeedsMetadata() bool {
	return s == StatusPendingMetadata || s == StatusDownloadingData
}

// inFlightRollback lists the statuses a crashed run can leave behind and
// where each one resumes.
var inFlightRollback = []struct {
	from Status
	to   Status
}{
	{from: StatusDownloading, to: StatusPaused},
	{from: StatusDownloadingData, to: StatusPendingMetadata},
}

// Entry is one gallery download persisted in SQLite.
type Entry struct {
	ID              int64
	Title           string
	Thumbnail       string
	RangeStart      int
	RangeEnd        int
	Status          Status
	MediaID         string
	PageCount       int
	Extensions      []string
	PagesDownloaded int
	BytesDownloaded int64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// MetadataResolved reports whether page count and extension hints are known.
func (e *Entry) MetadataResolved() bool {
	return e != nil && e.PageCount > 0
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	Active    int
	Paused    int
	Failed    int
	Completed int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalEntries     int
	Error            string
}
