// Package queue executes download tasks against a bounded number of
// concurrent downloader processes.
//
// Slot accounting follows a simple active set plus FIFO waiting list: a task
// is started only when a slot is free, and a finishing task hands its slot to
// the oldest waiting task after its terminal state has been persisted.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/supervisor"
	"github.com/warpdl/vodkeep/pkg/logger"
)

// DefaultMaxConcurrent is the concurrency limit used when none is set.
const DefaultMaxConcurrent = 2

// progressSaveInterval throttles how often progress is written to the store.
// Every progress line still reaches the observer.
const progressSaveInterval = time.Second

var (
	// ErrCancelled is recorded on tasks cancelled by the user.
	ErrCancelled = errors.New("cancelled by user")
	// ErrInvalidDownloadPath is returned when no usable download directory
	// is configured.
	ErrInvalidDownloadPath = errors.New("invalid download path")
	// ErrInvalidConcurrency is returned by SetConcurrency for limits below 1.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("queue is closed")
)

const msgInterrupted = "interrupted by daemon shutdown"

// Store persists task records.
type Store interface {
	SaveTask(ctx context.Context, t *model.DownloadTask) error
}

// Lookup resolves a source item id.
type Lookup interface {
	GetItem(ctx context.Context, id string) (*model.Item, error)
}

// Handle controls one running download.
type Handle interface {
	Wait() error
	Terminate() error
}

// Runner starts downloads.
type Runner interface {
	Run(ctx context.Context, req supervisor.Request, onProgress supervisor.ProgressFunc) (Handle, error)
}

// SupervisorRunner adapts a process supervisor to Runner.
func SupervisorRunner(s *supervisor.Supervisor) Runner {
	return supervisorRunner{s}
}

type supervisorRunner struct{ s *supervisor.Supervisor }

func (r supervisorRunner) Run(ctx context.Context, req supervisor.Request, fn supervisor.ProgressFunc) (Handle, error) {
	p, err := r.s.Start(ctx, req, fn)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Request asks for one source item to be downloaded.
type Request struct {
	ItemID  string
	Quality model.Quality
}

// Event is delivered to the observer on every progress line and on every
// status change.
type Event struct {
	TaskID     string       `json:"taskId"`
	Status     model.Status `json:"status"`
	Percent    float64      `json:"percent"`
	Downloaded int64        `json:"bytesDownloaded"`
	Total      int64        `json:"bytesTotal"`
	Error      string       `json:"error,omitempty"`
}

// Observer receives queue events. Events for one task arrive in order.
type Observer func(Event)

// Options configures a Queue.
type Options struct {
	Store  Store
	Lookup Lookup
	Runner Runner
	// Fs is used to create output directories; defaults to the OS filesystem.
	Fs            afero.Fs
	DownloadDir   string
	MaxConcurrent int
	Logger        logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	task      *model.DownloadTask
	item      *model.Item
	proc      Handle
	cancelled bool
	closing   bool
	lastSave  time.Time
}

// Queue is a bounded-concurrency download executor.
type Queue struct {
	store  Store
	lookup Lookup
	runner Runner
	fs     afero.Fs
	log    logger.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	downloadDir   string
	maxConcurrent int
	active        map[string]*entry
	waiting       []*entry
	paused        bool
	closed        bool
	observer      Observer
}

// New creates a Queue.
func New(opts Options) (*Queue, error) {
	if opts.Store == nil || opts.Lookup == nil || opts.Runner == nil {
		return nil, errors.New("queue: store, lookup and runner are required")
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.MaxConcurrent < 0 {
		return nil, ErrInvalidConcurrency
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:         opts.Store,
		lookup:        opts.Lookup,
		runner:        opts.Runner,
		fs:            opts.Fs,
		log:           logger.OrNop(opts.Logger),
		now:           opts.Now,
		ctx:           ctx,
		cancel:        cancel,
		downloadDir:   opts.DownloadDir,
		maxConcurrent: opts.MaxConcurrent,
		active:        make(map[string]*entry),
	}, nil
}

// Enqueue validates the item, persists a pending task and schedules it.
// The returned id identifies the task for its whole lifetime.
func (q *Queue) Enqueue(ctx context.Context, req Request) (string, error) {
	quality := req.Quality.OrDefault(model.QualitySource)
	if err := quality.Validate(); err != nil {
		return "", err
	}
	q.mu.Lock()
	dir, closed := q.downloadDir, q.closed
	q.mu.Unlock()
	if closed {
		return "", ErrClosed
	}
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("%w: download directory is not set", ErrInvalidDownloadPath)
	}

	item, err := q.lookup.GetItem(ctx, req.ItemID)
	if err != nil {
		return "", fmt.Errorf("lookup item %s: %w", req.ItemID, err)
	}
	task := &model.DownloadTask{
		ID:           uuid.NewString(),
		SourceItemID: item.ID,
		OwnerID:      item.OwnerID,
		OwnerName:    item.OwnerName,
		Title:        item.Title,
		URL:          item.URL,
		Quality:      quality,
		Status:       model.StatusPending,
		CreatedAt:    q.now(),
	}
	if err := q.store.SaveTask(ctx, task); err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.fail(&entry{task: task}, msgInterrupted)
		return "", ErrClosed
	}
	e := &entry{task: task, item: item}
	q.waiting = append(q.waiting, e)
	q.promoteLocked()
	q.mu.Unlock()

	q.log.Info("Queued %s (%s) as task %s", item.ID, item.Title, task.ID)
	return task.ID, nil
}

// promoteLocked starts waiting tasks while slots are free.
func (q *Queue) promoteLocked() {
	for !q.paused && !q.closed && len(q.waiting) > 0 && len(q.active) < q.maxConcurrent {
		next := q.waiting[0]
		q.waiting = q.waiting[1:]
		q.active[next.task.ID] = next
		q.wg.Add(1)
		go q.execute(next)
	}
}

// onComplete releases a slot and promotes the next waiting task.
func (q *Queue) onComplete(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, id)
	q.promoteLocked()
}

// Cancel stops a task. It returns true only when a running (or starting)
// download was signalled; its failed state is recorded once the process
// exits. A waiting task is withdrawn and failed immediately, and false is
// returned, as it is for unknown or finished tasks.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	if e, ok := q.active[id]; ok {
		e.cancelled = true
		proc := e.proc
		q.mu.Unlock()
		if proc != nil {
			if err := proc.Terminate(); err != nil {
				q.log.Warning("terminate task %s: %v", id, err)
			}
		}
		q.log.Info("Cancelled running task %s", id)
		return true
	}
	for i, e := range q.waiting {
		if e.task.ID != id {
			continue
		}
		q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
		q.mu.Unlock()
		q.fail(e, ErrCancelled.Error())
		q.log.Info("Withdrew queued task %s", id)
		return false
	}
	q.mu.Unlock()
	return false
}

// Size returns the number of waiting and running tasks.
func (q *Queue) Size() (queued, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting), len(q.active)
}

// IsActive reports whether the task currently holds a slot.
func (q *Queue) IsActive(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[id]
	return ok
}

// IsQueued reports whether the task is waiting for a slot.
func (q *Queue) IsQueued(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.waiting {
		if e.task.ID == id {
			return true
		}
	}
	return false
}

// SetConcurrency changes the limit. Raising it starts waiting tasks at once;
// lowering it lets running tasks finish and only affects future starts.
func (q *Queue) SetConcurrency(n int) error {
	if n < 1 {
		return ErrInvalidConcurrency
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxConcurrent = n
	q.promoteLocked()
	return nil
}

// MaxConcurrent returns the current limit.
func (q *Queue) MaxConcurrent() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxConcurrent
}

// Pause stops waiting tasks from starting. Running tasks are unaffected.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume re-enables starting waiting tasks and fills free slots.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	q.promoteLocked()
}

// IsPaused reports whether the queue is paused.
func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// SetObserver registers the single observer, replacing any previous one.
// A nil observer unsubscribes.
func (q *Queue) SetObserver(fn Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observer = fn
}

// SetDownloadDir changes the directory used by tasks started from now on.
func (q *Queue) SetDownloadDir(dir string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.downloadDir = dir
}

// DownloadDir returns the current download directory.
func (q *Queue) DownloadDir() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.downloadDir
}

// Close fails waiting tasks, terminates running downloads and waits for
// them to record their final state or for ctx to expire.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	waiting := q.waiting
	q.waiting = nil
	var procs []Handle
	for _, e := range q.active {
		e.closing = true
		if e.proc != nil {
			procs = append(procs, e.proc)
		}
	}
	q.mu.Unlock()

	for _, e := range waiting {
		q.fail(e, msgInterrupted)
	}
	for _, p := range procs {
		_ = p.Terminate()
	}
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) emit(ev Event) {
	q.mu.Lock()
	fn := q.observer
	q.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// save persists a snapshot of the task. Failures are logged; the in-memory
// lifecycle continues so the slot is always released.
func (q *Queue) save(t *model.DownloadTask) {
	if err := q.store.SaveTask(context.Background(), t); err != nil {
		q.log.Error("failed to persist task %s (%s): %v", t.ID, t.Status, err)
	}
}

// fail records a task that never reached a process as failed.
func (q *Queue) fail(e *entry, msg string) {
	q.mu.Lock()
	e.task.Status = model.StatusFailed
	e.task.ErrorMessage = msg
	snap := e.task.Clone()
	q.mu.Unlock()
	q.save(snap)
	q.emit(Event{TaskID: snap.ID, Status: snap.Status, Percent: snap.ProgressPercent, Error: msg})
}
