package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warpdl/vodkeep/internal/model"
)

const jobColumns = `id, owner_id, owner_name, cron_expression, quality, enabled, last_run_at, next_run_at`

// SaveJob inserts or replaces a scheduled job record.
func (s *Store) SaveJob(ctx context.Context, j *model.ScheduledJob) error {
	if j.ID == "" {
		return errors.New("job id is empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id        = excluded.owner_id,
			owner_name      = excluded.owner_name,
			cron_expression = excluded.cron_expression,
			quality         = excluded.quality,
			enabled         = excluded.enabled,
			last_run_at     = excluded.last_run_at,
			next_run_at     = excluded.next_run_at`,
		j.ID, j.OwnerID, j.OwnerName, j.CronExpression, string(j.Quality), boolInt(j.Enabled),
		nullTime(j.LastRunAt), nullTime(j.NextRunAt),
	)
	return err
}

func scanJob(r rowScanner) (*model.ScheduledJob, error) {
	var (
		j                model.ScheduledJob
		quality          string
		enabled          int
		lastRun, nextRun sql.NullInt64
	)
	if err := r.Scan(&j.ID, &j.OwnerID, &j.OwnerName, &j.CronExpression, &quality, &enabled, &lastRun, &nextRun); err != nil {
		return nil, err
	}
	j.Quality = model.Quality(quality)
	j.Enabled = enabled != 0
	j.LastRunAt = timePtr(lastRun)
	j.NextRunAt = timePtr(nextRun)
	return &j, nil
}

// GetJob returns the job with the given id or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*model.ScheduledJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return j, err
}

// ListJobs returns every job in insertion order.
func (s *Store) ListJobs(ctx context.Context) ([]*model.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// RemoveJob deletes a job record.
func (s *Store) RemoveJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return nil
}

const settingsKey = "config"

// GetSettings returns the persisted settings. Fields never saved keep the
// values from defaults; ok is false when nothing has been saved yet.
func (s *Store) GetSettings(ctx context.Context, defaults model.Settings) (settings model.Settings, ok bool, err error) {
	settings = defaults
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, false, nil
	}
	if err != nil {
		return settings, false, err
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return defaults, false, fmt.Errorf("decode settings: %w", err)
	}
	return settings, true, nil
}

// SaveSettings replaces the persisted settings document.
func (s *Store) SaveSettings(ctx context.Context, settings model.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		settingsKey, string(raw),
	)
	return err
}

// UpdateJobRun records a job's run timestamps without touching its
// definition.
func (s *Store) UpdateJobRun(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET last_run_at = ?, next_run_at = ? WHERE id = ?`,
		nullTime(lastRunAt), nullTime(nextRunAt), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return nil
}
