package api

import (
	"time"

	"galleryd/internal/queue"
)

// FromEntry converts a queue record to its API representation.
func FromEntry(entry *queue.Entry) QueueItem {
	if entry == nil {
		return QueueItem{}
	}
	dto := QueueItem{
		ID:              entry.ID,
		Title:           entry.Title,
		Thumbnail:       entry.Thumbnail,
		Status:          string(entry.Status),
		RangeStart:      entry.RangeStart,
		RangeEnd:        entry.RangeEnd,
		MediaID:         entry.MediaID,
		PageCount:       entry.PageCount,
		Extensions:      append([]string(nil), entry.Extensions...),
		Progress:        progressOf(entry),
		BytesDownloaded: entry.BytesDownloaded,
		ErrorMessage:    entry.ErrorMessage,
		CreatedAt:       formatTime(entry.CreatedAt),
		UpdatedAt:       formatTime(entry.UpdatedAt),
	}
	if entry.CompletedAt != nil {
		dto.CompletedAt = formatTime(*entry.CompletedAt)
	}
	return dto
}

// FromEntries converts a slice of queue records.
func FromEntries(entries []*queue.Entry) []QueueItem {
	out := make([]QueueItem, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		out = append(out, FromEntry(entry))
	}
	return out
}

// progressOf counts against the requested range when one is set.
func progressOf(entry *queue.Entry) QueueProgress {
	total := entry.PageCount
	if entry.RangeStart > 0 || entry.RangeEnd > 0 {
		start, end := entry.RangeStart, entry.RangeEnd
		if start <= 0 {
			start = 1
		}
		if end <= 0 || end > entry.PageCount {
			end = entry.PageCount
		}
		if end >= start {
			total = end - start + 1
		}
	}
	progress := QueueProgress{Pages: entry.PagesDownloaded, Total: total}
	if entry.Status == queue.StatusCompleted {
		progress.Percent = 100
	} else if total > 0 {
		progress.Percent = float64(entry.PagesDownloaded) / float64(total) * 100
	}
	return progress
}

// MergeQueueStats returns counts keyed by status string with every known
// status present.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
