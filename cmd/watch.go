package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/pkg/vodcli"
)

func watch(ctx *cli.Context) error {
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "watch", "new_client", err)
		return nil
	}
	defer client.Close()
	return watchTasks(ctx, client, ctx.Args()...)
}

// watchTasks draws a bar per task until every watched task finishes or
// the user interrupts. With no ids it follows every unfinished task,
// including ones queued while watching.
func watchTasks(ctx *cli.Context, client *vodcli.Client, ids ...string) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := mpb.NewWithContext(sigCtx, mpb.WithWidth(64))
	w := newWatcher(p, len(ids) == 0)
	// Registered before the snapshot so no event is missed; add is
	// idempotent.
	client.OnProgress(w.update)

	rctx, cancel := context.WithTimeout(sigCtx, rpcTimeout)
	defer cancel()
	if len(ids) == 0 {
		tasks, err := client.List(rctx, model.StatusPending, model.StatusDownloading)
		if err != nil {
			common.PrintRuntimeErr(ctx, "watch", "get_list", err)
			w.close()
			p.Shutdown()
			return nil
		}
		for _, t := range tasks {
			w.add(t)
		}
	} else {
		for _, id := range ids {
			t, err := client.GetDownload(rctx, id)
			if err != nil {
				common.PrintRuntimeErr(ctx, "watch", "get", err)
				w.close()
				p.Shutdown()
				return nil
			}
			w.add(t)
		}
	}
	if !w.start() {
		w.close()
		p.Wait()
		fmt.Println("vodkeep: nothing to watch")
	} else {
		select {
		case <-w.done:
			p.Wait()
		case <-sigCtx.Done():
			w.close()
			p.Shutdown()
		}
	}
	for _, line := range w.failures() {
		fmt.Println(line)
	}
	return nil
}

type taskBar struct {
	bar      *mpb.Bar
	finished bool
	// Read by the render goroutine.
	got   atomic.Int64
	total atomic.Int64
}

// watcher maps queue events onto progress bars.
type watcher struct {
	p      *mpb.Progress
	follow bool

	mu      sync.Mutex
	bars    map[string]*taskBar
	started bool
	failed  []string
	done    chan struct{}
	closed  bool
}

func newWatcher(p *mpb.Progress, follow bool) *watcher {
	return &watcher{
		p:      p,
		follow: follow,
		bars:   make(map[string]*taskBar),
		done:   make(chan struct{}),
	}
}

func (w *watcher) add(t *model.DownloadTask) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.bars[t.ID]; ok || w.closed {
		return
	}
	name := t.Title
	if name == "" {
		name = t.SourceItemID
	}
	tb := w.newBarLocked(t.ID, common.Truncate(name, 30))
	common.SetPercent(tb.bar, t.ProgressPercent)
	tb.got.Store(t.BytesDownloaded)
	tb.total.Store(t.BytesTotal)
	w.finishLocked(t.ID, tb, t.Status, t.ErrorMessage)
}

func (w *watcher) newBarLocked(id, name string) *taskBar {
	tb := &taskBar{}
	detail := decor.Any(func(decor.Statistics) string {
		total := tb.total.Load()
		if total <= 0 {
			return ""
		}
		return fmt.Sprintf("%s / %s", humanize.IBytes(uint64(tb.got.Load())), humanize.IBytes(uint64(total)))
	})
	tb.bar = common.InitBar(w.p, name, detail)
	w.bars[id] = tb
	return tb
}

// start reports whether there is anything to wait for, and arms the done
// signal.
func (w *watcher) start() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = true
	return w.unfinishedLocked() > 0
}

func (w *watcher) update(ev queue.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tb, ok := w.bars[ev.TaskID]
	if !ok {
		if !w.follow || w.closed || ev.Status.IsTerminal() {
			return
		}
		tb = w.newBarLocked(ev.TaskID, common.Truncate(ev.TaskID, 30))
	}
	if tb.finished {
		return
	}
	if ev.Total > 0 {
		tb.got.Store(ev.Downloaded)
		tb.total.Store(ev.Total)
	}
	if ev.Status == model.StatusDownloading {
		common.SetPercent(tb.bar, ev.Percent)
	}
	w.finishLocked(ev.TaskID, tb, ev.Status, ev.Error)
}

func (w *watcher) finishLocked(id string, tb *taskBar, st model.Status, msg string) {
	switch st {
	case model.StatusCompleted:
		tb.bar.SetCurrent(common.BarTotal)
	case model.StatusFailed:
		tb.bar.Abort(false)
		w.failed = append(w.failed, fmt.Sprintf("vodkeep: download %s failed: %s", id, msg))
	default:
		return
	}
	tb.finished = true
	if w.started && w.unfinishedLocked() == 0 {
		w.closeLocked()
	}
}

// close stops the watcher from adding bars and releases waiters.
func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *watcher) closeLocked() {
	if !w.closed {
		w.closed = true
		close(w.done)
	}
}

func (w *watcher) unfinishedLocked() int {
	n := 0
	for _, tb := range w.bars {
		if !tb.finished {
			n++
		}
	}
	return n
}

func (w *watcher) failures() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.failed...)
}
