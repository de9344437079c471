package downloads

import (
	"fmt"

	"galleryd/internal/gallery"
	"galleryd/internal/queue"
	"galleryd/internal/services"
)

// Request describes a caller asking for a gallery download.
type Request struct {
	ID        int64
	Title     string
	Thumbnail string
	Range     gallery.Range
}

// Validate rejects ids <= 0 and malformed ranges.
func (r Request) Validate() error {
	if r.ID <= 0 {
		return services.Wrap(services.ErrValidation, "enqueue", "validate", fmt.Sprintf("invalid gallery id %d", r.ID), nil)
	}
	return r.Range.Check()
}

// Entry converts the request into a fresh queue row awaiting metadata.
func (r Request) Entry() queue.Entry {
	return queue.Entry{
		ID:         r.ID,
		Title:      r.Title,
		Thumbnail:  r.Thumbnail,
		RangeStart: r.Range.Start,
		RangeEnd:   r.Range.End,
		Status:     queue.StatusPendingMetadata,
	}
}

// AddResult reports what Queue.Add did with an entry.
type AddResult int

const (
	// AddInserted means the id was new to the queue.
	AddInserted AddResult = iota
	// AddMerged means an existing entry took the incoming range, title and thumbnail.
	AddMerged
	// AddIgnored means the existing entry is downloading and was left untouched.
	AddIgnored
)

func (r AddResult) String() string {
	switch r {
	case AddInserted:
		return "inserted"
	case AddMerged:
		return "merged"
	case AddIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// MergeInto applies incoming's range, title and thumbnail to existing unless
// existing is downloading. Empty incoming title or thumbnail keep the existing
// values. The returned result is AddMerged or AddIgnored.
func MergeInto(existing *queue.Entry, incoming queue.Entry) AddResult {
	if existing.Status == queue.StatusDownloading {
		return AddIgnored
	}
	existing.RangeStart = incoming.RangeStart
	existing.RangeEnd = incoming.RangeEnd
	if incoming.Title != "" {
		existing.Title = incoming.Title
	}
	if incoming.Thumbnail != "" {
		existing.Thumbnail = incoming.Thumbnail
	}
	return AddMerged
}

// Restore turns persisted rows into queue entries for a cold start. Every
// returned entry is forced to paused so nothing resumes in a downloading
// state left by a crashed run. Entries without resolved metadata still go
// through the data phase because FetchForData selects on resolution, not
// status. Terminal rows are dropped.
func Restore(rows []*queue.Entry) []queue.Entry {
	restored := make([]queue.Entry, 0, len(rows))
	for _, row := range rows {
		if row == nil || row.Status.IsTerminal() {
			continue
		}
		entry := *row
		entry.Status = queue.StatusPaused
		restored = append(restored, entry)
	}
	return restored
}
