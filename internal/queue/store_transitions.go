package queue

import (
	"context"
	"fmt"
	"time"
)

// UpdateStatus records a status transition and its error message (cleared
// when empty). Returns false when no row matched.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status, errorMessage string) (bool, error) {
	if _, ok := statusSet[status]; !ok {
		return false, fmt.Errorf("update status: unknown status %q", status)
	}
	affected, err := s.execAffected(
		ctx,
		`UPDATE downloads SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status,
		nullableString(errorMessage),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return affected > 0, nil
}

// UpdateProgress stores the page and byte counters of an in-flight download.
func (s *Store) UpdateProgress(ctx context.Context, id int64, pages int, bytes int64) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE downloads SET pages_downloaded = ?, bytes_downloaded = ?, updated_at = ? WHERE id = ?`,
		pages,
		bytes,
		formatTime(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Finalize marks an entry completed, stores its final sizes, and clears the
// requested page range.
func (s *Store) Finalize(ctx context.Context, id int64, pages int, bytes int64) error {
	now := formatTime(time.Now())
	affected, err := s.execAffected(
		ctx,
		`UPDATE downloads
         SET status = ?, pages_downloaded = ?, bytes_downloaded = ?,
             range_start = 0, range_end = 0, error_message = NULL,
             updated_at = ?, completed_at = ?
         WHERE id = ?`,
		StatusCompleted,
		pages,
		bytes,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("finalize entry %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("finalize entry %d: not found", id)
	}
	return nil
}

// ResetInFlight returns entries a crashed run left mid-step to their resumable
// checkpoint: downloading goes back to paused, downloading_data back to
// pending_metadata.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	affected, err := s.execAffected(
		ctx,
		`UPDATE downloads
         SET status = CASE status
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             updated_at = ?
         WHERE status IN (?, ?)`,
		inFlightRollback[0].from, inFlightRollback[0].to,
		inFlightRollback[1].from, inFlightRollback[1].to,
		formatTime(time.Now()),
		inFlightRollback[0].from,
		inFlightRollback[1].from,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight entries: %w", err)
	}
	return affected, nil
}

// RetryFailed moves failed entries back into the active lifecycle. Entries
// with resolved metadata resume at paused, the rest at pending_metadata. With
// no ids every failed entry is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	args := []any{
		StatusPaused,
		StatusPendingMetadata,
		formatTime(time.Now()),
		StatusFailed,
	}
	query := `UPDATE downloads
        SET status = CASE WHEN page_count > 0 THEN ? ELSE ? END,
            error_message = NULL, updated_at = ?
        WHERE status = ?`
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	affected, err := s.execAffected(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed entries: %w", err)
	}
	return affected, nil
}
