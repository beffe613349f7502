package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/pkg/logger"
)

const maxSleepCap = 60 * time.Second

// DefaultRecentLimit is how many recent items a fire fetches.
const DefaultRecentLimit = 5

var (
	// ErrInvalidCron is returned for expressions that are not valid
	// 5-field cron schedules.
	ErrInvalidCron = errors.New("invalid cron expression")
	// ErrNotScheduled is returned by RunNow for jobs without a trigger.
	ErrNotScheduled = errors.New("job is not scheduled")
)

// Source lists an owner's items, most recent first.
type Source interface {
	ListRecentItems(ctx context.Context, ownerID string, limit int) ([]*model.Item, error)
}

// Enqueuer accepts downloads.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.Request) (string, error)
}

// Store is the persistence the scheduler needs.
type Store interface {
	HasCompletedTask(ctx context.Context, sourceItemID string) (bool, error)
	UpdateJobRun(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error
}

// Options configures a Scheduler.
type Options struct {
	Source      Source
	Queue       Enqueuer
	Store       Store
	Logger      logger.Logger
	RecentLimit int
	// Now defaults to time.Now.
	Now func() time.Time
}

type registration struct {
	job *model.ScheduledJob
	gen uint64
}

// Scheduler keeps one trigger per enabled job.
type Scheduler struct {
	source Source
	queue  Enqueuer
	store  Store
	log    logger.Logger
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	h       triggers
	jobs    map[string]registration
	gen     uint64
	started bool
	wake    chan struct{}
	fires   sync.WaitGroup
}

// New creates a Scheduler. Call Start to run its loop.
func New(opts Options) *Scheduler {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		source: opts.Source,
		queue:  opts.Queue,
		store:  opts.Store,
		log:    logger.OrNop(opts.Logger),
		limit:  opts.RecentLimit,
		now:    opts.Now,
		jobs:   make(map[string]registration),
		wake:   make(chan struct{}, 1),
	}
}

// Validate reports whether expr is a 5-field cron expression
// (minute hour day-of-month month day-of-week).
func Validate(expr string) bool {
	if len(strings.Fields(expr)) != 5 {
		return false
	}
	return gronx.IsValid(expr)
}

// NextRun returns the first fire time strictly after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	if !Validate(expr) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCron, expr)
	}
	return gronx.NextTickAfter(expr, from, false)
}

// Start runs the scheduler loop until ctx is cancelled. It returns
// immediately; calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		s.mu.Lock()
		sleep := maxSleepCap
		if at, ok := s.h.next(s.liveLocked); ok {
			sleep = at.Sub(s.now())
		}
		s.mu.Unlock()
		if sleep > maxSleepCap {
			sleep = maxSleepCap
		}
		if sleep < 0 {
			sleep = 0
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
		s.runDue(ctx, s.now())
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ScheduleJob installs the trigger for job, replacing any existing one. A
// disabled job is only unregistered. The next run is persisted before the
// trigger is armed, so a store failure leaves the job without a trigger. An
// invalid expression also leaves it without one and returns ErrInvalidCron.
func (s *Scheduler) ScheduleJob(ctx context.Context, job *model.ScheduledJob) error {
	s.StopJob(job.ID)
	if !job.Enabled {
		job.NextRunAt = nil
		return s.store.UpdateJobRun(ctx, job.ID, job.LastRunAt, nil)
	}
	next, err := NextRun(job.CronExpression, s.now())
	if err != nil {
		return err
	}
	if err := s.store.UpdateJobRun(ctx, job.ID, job.LastRunAt, &next); err != nil {
		return fmt.Errorf("job %s: persist next run: %w", job.ID, err)
	}

	s.mu.Lock()
	s.gen++
	s.jobs[job.ID] = registration{job: job.Clone(), gen: s.gen}
	s.h.arm(job.ID, next, s.gen)
	s.mu.Unlock()
	s.notify()

	job.NextRunAt = &next
	s.log.Info("Scheduled job %s (%s, %q), next run %s", job.ID, job.OwnerName, job.CronExpression, next.Format(time.RFC3339))
	return nil
}

// StopJob removes the job's trigger. Once it returns the job will not fire
// again; a fire already past its dedup check is dropped before enqueueing.
func (s *Scheduler) StopJob(id string) {
	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.h.disarm(id)
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// StopAll removes every trigger.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.jobs = make(map[string]registration)
	s.h = s.h[:0]
	s.mu.Unlock()
	s.notify()
}

// Active reports whether the job has a live trigger.
func (s *Scheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Len returns the number of live triggers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RunNow fires a scheduled job immediately without moving its trigger.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	s.mu.Lock()
	reg, ok := s.jobs[id]
	next, _ := s.h.pending(id, reg.gen)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotScheduled, id)
	}
	s.fires.Add(1)
	go s.fire(ctx, reg, next)
	return nil
}

// Wait blocks until all in-flight fires have finished.
func (s *Scheduler) Wait() {
	s.fires.Wait()
}

// runDue fires every trigger due at now and re-arms it for its next tick.
// It returns the number of fires started.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) int {
	type due struct {
		reg  registration
		next time.Time
	}
	var fired []due

	s.mu.Lock()
	for _, ev := range s.h.due(now, s.liveLocked) {
		reg := s.jobs[ev.JobID]
		next, err := NextRun(reg.job.CronExpression, now)
		if err != nil {
			delete(s.jobs, ev.JobID)
			s.log.Error("job %s dropped: %v", ev.JobID, err)
			continue
		}
		s.h.arm(ev.JobID, next, reg.gen)
		fired = append(fired, due{reg: reg, next: next})
	}
	s.mu.Unlock()

	for _, d := range fired {
		s.fires.Add(1)
		go s.fire(ctx, d.reg, d.next)
	}
	return len(fired)
}

func (s *Scheduler) live(id string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(id, gen)
}

// liveLocked is live for callers holding s.mu.
func (s *Scheduler) liveLocked(id string, gen uint64) bool {
	reg, ok := s.jobs[id]
	return ok && reg.gen == gen
}

// fire runs one cycle of a job. Lookup failures are logged and end the
// cycle; they do not affect the trigger.
func (s *Scheduler) fire(ctx context.Context, reg registration, next time.Time) {
	defer s.fires.Done()
	job := reg.job

	ran := s.now()
	var nextPtr *time.Time
	if !next.IsZero() {
		nextPtr = &next
	}
	if err := s.store.UpdateJobRun(ctx, job.ID, &ran, nextPtr); err != nil {
		s.log.Error("job %s: failed to record run: %v", job.ID, err)
	}

	items, err := s.source.ListRecentItems(ctx, job.OwnerID, s.limit)
	if err != nil {
		s.log.Warning("job %s: listing items for %s failed: %v", job.ID, job.OwnerName, err)
		return
	}
	if len(items) == 0 {
		s.log.Info("job %s: no items for %s", job.ID, job.OwnerName)
		return
	}

	latest := items[0]
	done, err := s.store.HasCompletedTask(ctx, latest.ID)
	if err != nil {
		s.log.Error("job %s: checking history for %s: %v", job.ID, latest.ID, err)
		return
	}
	if done {
		s.log.Info("job %s: %s already backed up", job.ID, latest.ID)
		return
	}
	if !s.live(job.ID, reg.gen) {
		return
	}

	id, err := s.queue.Enqueue(ctx, queue.Request{ItemID: latest.ID, Quality: job.Quality})
	if err != nil {
		s.log.Warning("job %s: enqueue %s failed: %v", job.ID, latest.ID, err)
		return
	}
	s.log.Info("job %s: queued %s (%s) as task %s", job.ID, latest.ID, latest.Title, id)
}
