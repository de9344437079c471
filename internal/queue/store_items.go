package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidID is returned for gallery identifiers that are not positive.
var ErrInvalidID = errors.New("gallery id must be positive")

// activeStatuses are the statuses LoadAll restores into memory.
var activeStatuses = []Status{
	StatusPendingMetadata,
	StatusDownloadingData,
	StatusPaused,
	StatusDownloading,
}

// Upsert inserts the entry or replaces the stored row with the same id. The
// creation timestamp of an existing row is preserved.
func (s *Store) Upsert(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	if entry.ID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, entry.ID)
	}
	if _, ok := statusSet[entry.Status]; !ok {
		return fmt.Errorf("upsert entry %d: unknown status %q", entry.ID, entry.Status)
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO downloads (`+entryColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             title = excluded.title,
             thumbnail = excluded.thumbnail,
             range_start = excluded.range_start,
             range_end = excluded.range_end,
             status = excluded.status,
             media_id = excluded.media_id,
             page_count = excluded.page_count,
             page_extensions = excluded.page_extensions,
             pages_downloaded = excluded.pages_downloaded,
             bytes_downloaded = excluded.bytes_downloaded,
             error_message = excluded.error_message,
             updated_at = excluded.updated_at,
             completed_at = excluded.completed_at`,
		entry.ID,
		nullableString(entry.Title),
		nullableString(entry.Thumbnail),
		entry.RangeStart,
		entry.RangeEnd,
		entry.Status,
		nullableString(entry.MediaID),
		entry.PageCount,
		joinExtensions(entry.Extensions),
		entry.PagesDownloaded,
		entry.BytesDownloaded,
		nullableString(entry.ErrorMessage),
		formatTime(entry.CreatedAt),
		formatTime(entry.UpdatedAt),
		nullableTime(entry.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert entry %d: %w", entry.ID, err)
	}
	return nil
}

// GetByID fetches an entry by gallery identifier. A missing row returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+entryColumns+` FROM downloads WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// LoadAll returns every non-terminal entry in creation order. The worker
// rebuilds its in-memory queue from this list after a cold start.
func (s *Store) LoadAll(ctx context.Context) ([]*Entry, error) {
	entries, err := s.List(ctx, activeStatuses...)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	return entries, nil
}

// List returns entries filtered by status set (or all entries when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Entry, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + entryColumns + ` FROM downloads`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes an entry by identifier.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	affected, err := s.execAffected(ctx, `DELETE FROM downloads WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed entries.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	affected, err := s.execAffected(ctx, `DELETE FROM downloads WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return affected, nil
}

// ClearFailed removes only failed entries.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	affected, err := s.execAffected(ctx, `DELETE FROM downloads WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return affected, nil
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	affected, err := s.execAffected(ctx, `DELETE FROM downloads`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return affected, nil
}
