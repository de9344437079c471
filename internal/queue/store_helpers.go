package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const entryColumns = "id, title, thumbnail, range_start, range_end, status, media_id, page_count, page_extensions, pages_downloaded, bytes_downloaded, error_message, created_at, updated_at, completed_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id              int64
		title           sql.NullString
		thumbnail       sql.NullString
		rangeStart      int
		rangeEnd        int
		statusStr       string
		mediaID         sql.NullString
		pageCount       int
		extensions      sql.NullString
		pagesDownloaded int
		bytesDownloaded int64
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&thumbnail,
		&rangeStart,
		&rangeEnd,
		&statusStr,
		&mediaID,
		&pageCount,
		&extensions,
		&pagesDownloaded,
		&bytesDownloaded,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:              id,
		Title:           title.String,
		Thumbnail:       thumbnail.String,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		Status:          Status(statusStr),
		MediaID:         mediaID.String,
		PageCount:       pageCount,
		Extensions:      splitExtensions(extensions.String),
		PagesDownloaded: pagesDownloaded,
		BytesDownloaded: bytesDownloaded,
		ErrorMessage:    errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			entry.CompletedAt = &completed
		}
	}
	return entry, nil
}

func joinExtensions(values []string) any {
	if len(values) == 0 {
		return nil
	}
	return strings.Join(values, ",")
}

func splitExtensions(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

// timestampLayout keeps a fixed-width fraction so stored timestamps sort
// lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
