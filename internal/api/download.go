package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/store"
)

// Download queues a backup of one item. An empty quality falls back to the
// preferred quality setting.
func (a *Api) Download(ctx context.Context, itemID string, quality model.Quality) (string, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return "", fmt.Errorf("%w: missing item id", ErrInvalidParams)
	}
	if quality == "" {
		quality = a.Settings().PreferredQuality
	}
	return a.queue.Enqueue(ctx, queue.Request{ItemID: itemID, Quality: quality})
}

// Cancel stops a task and reports whether a running download was
// signalled. A task that had already finished is removed from history.
func (a *Api) Cancel(ctx context.Context, id string) (bool, error) {
	t, err := a.store.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	if a.queue.Cancel(id) {
		return true, nil
	}
	if t.Status.IsTerminal() {
		if err := a.store.RemoveTask(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

// ListDownloads returns tasks, optionally filtered by status.
func (a *Api) ListDownloads(ctx context.Context, statuses ...model.Status) ([]*model.DownloadTask, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidParams, st)
		}
	}
	tasks, err := a.store.ListTasks(ctx, statuses...)
	if tasks == nil {
		tasks = []*model.DownloadTask{}
	}
	return tasks, err
}

// GetDownload returns one task.
func (a *Api) GetDownload(ctx context.Context, id string) (*model.DownloadTask, error) {
	return a.store.GetTask(ctx, id)
}

// RemoveDownload deletes a finished task from history. Downloaded files
// are left on disk.
func (a *Api) RemoveDownload(ctx context.Context, id string) error {
	if a.queue.IsActive(id) || a.queue.IsQueued(id) {
		return fmt.Errorf("%w: %s", ErrTaskBusy, id)
	}
	return a.store.RemoveTask(ctx, id)
}

// Flush removes finished tasks older than age from history and returns how
// many were removed. Zero removes every finished task.
func (a *Api) Flush(ctx context.Context, age time.Duration) (int, error) {
	if age < 0 {
		return 0, fmt.Errorf("%w: negative age", ErrInvalidParams)
	}
	return a.store.PruneTasks(ctx, a.now().Add(-age))
}

// QueueStatus describes the queue.
type QueueStatus struct {
	Queued        int  `json:"queued"`
	Active        int  `json:"active"`
	MaxConcurrent int  `json:"maxConcurrent"`
	Paused        bool `json:"paused"`
}

// QueueStatus returns the queue depth and limit.
func (a *Api) QueueStatus() QueueStatus {
	queued, active := a.queue.Size()
	return QueueStatus{
		Queued:        queued,
		Active:        active,
		MaxConcurrent: a.queue.MaxConcurrent(),
		Paused:        a.queue.IsPaused(),
	}
}

// SetConcurrency changes the concurrency limit and persists it.
func (a *Api) SetConcurrency(ctx context.Context, n int) error {
	_, err := a.UpdateSettings(ctx, SettingsPatch{MaxConcurrentDownloads: &n})
	return err
}

// PauseQueue stops new downloads from starting. Running downloads continue.
func (a *Api) PauseQueue() {
	a.queue.Pause()
}

// ResumeQueue lets waiting downloads start again.
func (a *Api) ResumeQueue() {
	a.queue.Resume()
}
