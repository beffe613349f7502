package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warpdl/vodkeep/internal/model"
)

const taskColumns = `id, source_item_id, owner_id, owner_name, title, url, quality, status,
	progress, bytes_downloaded, bytes_total, output_path, error_message, created_at, completed_at`

// SaveTask inserts or updates a task record. The current status is read and
// the write refused with ErrStatusRegression inside the same transaction, so
// a stale writer can never move a task backwards.
func (s *Store) SaveTask(ctx context.Context, t *model.DownloadTask) error {
	if t.ID == "" {
		return errors.New("task id is empty")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var cur string
		err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, t.ID).Scan(&cur)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			if !model.Status(cur).CanTransition(t.Status) {
				return fmt.Errorf("%w: task %s %s -> %s", ErrStatusRegression, t.ID, cur, t.Status)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				source_item_id   = excluded.source_item_id,
				owner_id         = excluded.owner_id,
				owner_name       = excluded.owner_name,
				title            = excluded.title,
				url              = excluded.url,
				quality          = excluded.quality,
				status           = excluded.status,
				progress         = excluded.progress,
				bytes_downloaded = excluded.bytes_downloaded,
				bytes_total      = excluded.bytes_total,
				output_path      = excluded.output_path,
				error_message    = excluded.error_message,
				completed_at     = excluded.completed_at`,
			t.ID, t.SourceItemID, t.OwnerID, t.OwnerName, t.Title, t.URL, string(t.Quality), string(t.Status),
			t.ProgressPercent, t.BytesDownloaded, t.BytesTotal, t.OutputPath, t.ErrorMessage,
			toUnix(t.CreatedAt), nullTime(t.CompletedAt),
		)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*model.DownloadTask, error) {
	var (
		t               model.DownloadTask
		quality, status string
		createdAt       int64
		completedAt     sql.NullInt64
	)
	err := r.Scan(&t.ID, &t.SourceItemID, &t.OwnerID, &t.OwnerName, &t.Title, &t.URL, &quality, &status,
		&t.ProgressPercent, &t.BytesDownloaded, &t.BytesTotal, &t.OutputPath, &t.ErrorMessage,
		&createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Quality = model.Quality(quality)
	t.Status = model.Status(status)
	t.CreatedAt = fromUnix(createdAt)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}

// GetTask returns the task with the given id or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (*model.DownloadTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return t, err
}

// ListTasks returns tasks in creation order. With no statuses given every
// task is returned.
func (s *Store) ListTasks(ctx context.Context, statuses ...model.Status) ([]*model.DownloadTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*model.DownloadTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RemoveTask deletes a task record from history.
func (s *Store) RemoveTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return nil
}

// HasCompletedTask reports whether any task for the source item reached
// completed. Failed attempts do not count.
func (s *Store) HasCompletedTask(ctx context.Context, sourceItemID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE source_item_id = ? AND status = ?)`,
		sourceItemID, string(model.StatusCompleted),
	).Scan(&exists)
	return exists == 1, err
}

// MarkInterrupted fails every task left pending or downloading by a previous
// process, returning the number of tasks changed.
func (s *Store) MarkInterrupted(ctx context.Context, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = ? WHERE status IN (?, ?)`,
		string(model.StatusFailed), reason, string(model.StatusPending), string(model.StatusDownloading),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PruneTasks deletes terminal tasks created before the cutoff and returns
// how many were removed.
func (s *Store) PruneTasks(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE status IN (?, ?) AND created_at < ?`,
		string(model.StatusCompleted), string(model.StatusFailed), toUnix(before),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
