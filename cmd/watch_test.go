package cmd

import (
	"io"
	"testing"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
)

func newTestWatcher(follow bool) (*watcher, *mpb.Progress) {
	p := mpb.New(mpb.WithOutput(io.Discard))
	return newWatcher(p, follow), p
}

func waitDone(t *testing.T, w *watcher) {
	t.Helper()
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not finish")
	}
}

func TestWatcher_FinishesWhenAllTasksEnd(t *testing.T) {
	w, p := newTestWatcher(false)
	w.add(&model.DownloadTask{ID: "a", Title: "First", Status: model.StatusDownloading, ProgressPercent: 10})
	w.add(&model.DownloadTask{ID: "b", SourceItemID: "v2", Status: model.StatusPending})
	if !w.start() {
		t.Fatal("start() = false with unfinished tasks")
	}

	w.update(queue.Event{TaskID: "a", Status: model.StatusDownloading, Percent: 55, Downloaded: 5, Total: 10})
	w.update(queue.Event{TaskID: "a", Status: model.StatusCompleted, Percent: 100})
	w.update(queue.Event{TaskID: "unknown", Status: model.StatusDownloading, Percent: 5})
	select {
	case <-w.done:
		t.Fatal("done before every task finished")
	default:
	}
	w.update(queue.Event{TaskID: "b", Status: model.StatusFailed, Error: "cancelled by user"})
	waitDone(t, w)
	p.Wait()

	if len(w.bars) != 2 {
		t.Fatalf("bars = %d, want 2 (unknown task must be ignored)", len(w.bars))
	}
	got := w.failures()
	if len(got) != 1 || got[0] != "vodkeep: download b failed: cancelled by user" {
		t.Fatalf("failures() = %v", got)
	}
}

func TestWatcher_FollowAddsNewTasks(t *testing.T) {
	w, p := newTestWatcher(true)
	w.add(&model.DownloadTask{ID: "a", Status: model.StatusDownloading})
	w.start()

	w.update(queue.Event{TaskID: "late", Status: model.StatusDownloading, Percent: 1})
	// Terminal events for unseen tasks do not create bars.
	w.update(queue.Event{TaskID: "gone", Status: model.StatusCompleted})
	w.update(queue.Event{TaskID: "a", Status: model.StatusCompleted})
	select {
	case <-w.done:
		t.Fatal("done while a followed task is still running")
	default:
	}
	w.update(queue.Event{TaskID: "late", Status: model.StatusCompleted})
	waitDone(t, w)
	p.Wait()
	if _, ok := w.bars["gone"]; ok {
		t.Fatal("bar created for finished unseen task")
	}
}

func TestWatcher_NothingToWatch(t *testing.T) {
	w, p := newTestWatcher(false)
	w.add(&model.DownloadTask{ID: "a", Status: model.StatusCompleted, ProgressPercent: 100})
	w.add(&model.DownloadTask{ID: "b", Status: model.StatusFailed, ErrorMessage: "boom"})
	if w.start() {
		t.Fatal("start() = true with only finished tasks")
	}
	w.close()
	p.Wait()
	if len(w.failures()) != 1 {
		t.Fatalf("failures() = %v", w.failures())
	}
	// Closed watchers ignore further tasks.
	w.add(&model.DownloadTask{ID: "c", Status: model.StatusDownloading})
	if _, ok := w.bars["c"]; ok {
		t.Fatal("bar added after close")
	}
}
