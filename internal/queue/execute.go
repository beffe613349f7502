package queue

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/supervisor"
)

var unsafeTitleChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeTitle replaces every non-alphanumeric character with '_' and
// lower-cases the result.
func SanitizeTitle(title string) string {
	return strings.ToLower(unsafeTitleChars.ReplaceAllString(title, "_"))
}

// OutputPath derives the file a download is written to:
// <dir>/<ownerId>/<YYYY-MM-DD>_<title>_<itemId>.mp4. The date is the item's
// creation date, falling back to created when the item has none.
func OutputPath(dir string, item *model.Item, created time.Time) string {
	date := item.CreatedAt
	if date.IsZero() {
		date = created
	}
	name := fmt.Sprintf("%s_%s_%s.mp4", date.UTC().Format("2006-01-02"), SanitizeTitle(item.Title), item.ID)
	return filepath.Join(dir, item.OwnerID, name)
}

// execute runs one task in its slot. The terminal state is saved before the
// slot is released, so the next task never starts ahead of it.
func (q *Queue) execute(e *entry) {
	defer q.wg.Done()
	defer q.onComplete(e.task.ID)

	q.mu.Lock()
	out := OutputPath(q.downloadDir, e.item, e.task.CreatedAt)
	e.task.Status = model.StatusDownloading
	e.task.OutputPath = out
	snap := e.task.Clone()
	q.mu.Unlock()
	q.save(snap)
	q.emit(Event{TaskID: snap.ID, Status: snap.Status})

	if err := q.fs.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		q.finish(e, fmt.Errorf("%w: %v", ErrInvalidDownloadPath, err))
		return
	}

	q.mu.Lock()
	stop := e.cancelled || e.closing
	q.mu.Unlock()
	if stop {
		q.finish(e, ErrCancelled)
		return
	}

	req := supervisor.Request{URL: e.item.URL, OutputPath: out, Quality: e.task.Quality}
	q.log.Info("Starting task %s: %s -> %s", e.task.ID, req.URL, out)
	proc, err := q.runner.Run(q.ctx, req, func(p supervisor.Progress) { q.progress(e, p) })
	if err != nil {
		q.finish(e, err)
		return
	}

	q.mu.Lock()
	e.proc = proc
	stop = e.cancelled || e.closing
	q.mu.Unlock()
	if stop {
		_ = proc.Terminate()
	}
	q.finish(e, proc.Wait())
}

func (q *Queue) progress(e *entry, p supervisor.Progress) {
	now := q.now()
	q.mu.Lock()
	e.task.ProgressPercent = p.Percent
	e.task.BytesDownloaded = p.Downloaded
	e.task.BytesTotal = p.Total
	var snap *model.DownloadTask
	if now.Sub(e.lastSave) >= progressSaveInterval {
		e.lastSave = now
		snap = e.task.Clone()
	}
	id := e.task.ID
	q.mu.Unlock()

	if snap != nil {
		q.save(snap)
	}
	q.emit(Event{TaskID: id, Status: model.StatusDownloading, Percent: p.Percent, Downloaded: p.Downloaded, Total: p.Total})
}

// finish records the terminal state for a task that held a slot.
func (q *Queue) finish(e *entry, runErr error) {
	q.mu.Lock()
	t := e.task
	switch {
	case e.cancelled:
		t.Status = model.StatusFailed
		t.ErrorMessage = ErrCancelled.Error()
	case runErr == nil:
		done := q.now()
		t.Status = model.StatusCompleted
		t.ProgressPercent = 100
		t.CompletedAt = &done
	case e.closing:
		t.Status = model.StatusFailed
		t.ErrorMessage = msgInterrupted
	default:
		t.Status = model.StatusFailed
		t.ErrorMessage = runErr.Error()
	}
	snap := t.Clone()
	q.mu.Unlock()

	q.save(snap)
	if snap.Status == model.StatusCompleted {
		q.log.Info("Completed task %s: %s", snap.ID, snap.OutputPath)
	} else {
		q.log.Warning("Task %s failed: %s", snap.ID, snap.ErrorMessage)
	}
	q.emit(Event{
		TaskID:     snap.ID,
		Status:     snap.Status,
		Percent:    snap.ProgressPercent,
		Downloaded: snap.BytesDownloaded,
		Total:      snap.BytesTotal,
		Error:      snap.ErrorMessage,
	})
}
