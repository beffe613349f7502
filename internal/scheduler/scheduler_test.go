package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/pkg/logger"
)

type fakeSource struct {
	items map[string][]*model.Item
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeSource) ListRecentItems(_ context.Context, ownerID string, limit int) ([]*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	items := f.items[ownerID]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	reqs []queue.Request
}

func (f *fakeQueue) Enqueue(_ context.Context, req queue.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return "task-" + req.ItemID, nil
}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type jobRun struct{ last, next *time.Time }

type fakeStore struct {
	mu        sync.Mutex
	completed map[string]bool
	runs      map[string]jobRun
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{completed: map[string]bool{}, runs: map[string]jobRun{}}
}

func (f *fakeStore) HasCompletedTask(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed[id], nil
}

func (f *fakeStore) UpdateJobRun(_ context.Context, id string, last, next *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.runs[id] = jobRun{last: last, next: next}
	return nil
}

func (f *fakeStore) run(id string) jobRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	s     *Scheduler
	src   *fakeSource
	q     *fakeQueue
	store *fakeStore
	clock *clock
	log   *logger.MockLogger
}

func newFixture() *fixture {
	f := &fixture{
		src: &fakeSource{items: map[string][]*model.Item{
			"owner-1": {
				{ID: "v3", OwnerID: "owner-1", Title: "newest"},
				{ID: "v2", OwnerID: "owner-1", Title: "older"},
			},
		}},
		q:     &fakeQueue{},
		store: newFakeStore(),
		clock: &clock{now: time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC)},
		log:   logger.NewMockLogger(),
	}
	f.s = New(Options{Source: f.src, Queue: f.q, Store: f.store, Logger: f.log, Now: f.clock.Now})
	return f
}

func hourlyJob(id string) *model.ScheduledJob {
	return &model.ScheduledJob{
		ID:             id,
		OwnerID:        "owner-1",
		OwnerName:      "owner",
		CronExpression: "0 * * * *",
		Quality:        model.Quality720p,
		Enabled:        true,
	}
}

// advance moves the clock past the job's next fire time and runs due triggers.
func (f *fixture) advance(t *testing.T, job *model.ScheduledJob) int {
	t.Helper()
	next, err := NextRun(job.CronExpression, f.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Set(next.Add(time.Second))
	n := f.s.runDue(context.Background(), f.clock.Now())
	f.s.Wait()
	return n
}

func TestScheduler_StopJobLeavesNoTrigger(t *testing.T) {
	f := newFixture()
	job := hourlyJob("j1")
	if err := f.s.ScheduleJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	f.s.StopJob("j1")
	if f.s.Active("j1") {
		t.Fatal("job still active after StopJob")
	}
	if n := f.advance(t, job); n != 0 {
		t.Fatalf("stopped job fired %d times", n)
	}
	if f.q.count() != 0 {
		t.Fatalf("stopped job enqueued %d tasks", f.q.count())
	}
}

func TestScheduler_DedupAgainstCompleted(t *testing.T) {
	tests := []struct {
		name      string
		completed map[string]bool
		want      int
	}{
		{"completed blocks", map[string]bool{"v3": true}, 0},
		{"failed does not block", map[string]bool{}, 1},
		{"only newest item considered", map[string]bool{"v2": true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.store.completed = tt.completed
			job := hourlyJob("j1")
			if err := f.s.ScheduleJob(context.Background(), job); err != nil {
				t.Fatal(err)
			}
			if n := f.advance(t, job); n != 1 {
				t.Fatalf("expected one fire, got %d", n)
			}
			if got := f.q.count(); got != tt.want {
				t.Fatalf("enqueued %d, want %d", got, tt.want)
			}
			if tt.want == 1 {
				req := f.q.reqs[0]
				if req.ItemID != "v3" || req.Quality != model.Quality720p {
					t.Fatalf("unexpected request %+v", req)
				}
			}
		})
	}
}

func TestScheduler_NoItemsIsNoop(t *testing.T) {
	f := newFixture()
	job := hourlyJob("j1")
	job.OwnerID = "quiet-owner"
	f.s.ScheduleJob(context.Background(), job)
	f.advance(t, job)
	if f.q.count() != 0 {
		t.Fatal("enqueued without items")
	}
	if f.store.run("j1").last == nil {
		t.Fatal("lastRunAt not recorded")
	}
}

func TestScheduler_LookupFailureIsLogged(t *testing.T) {
	f := newFixture()
	f.src.err = errors.New("helix: 503")
	job := hourlyJob("j1")
	f.s.ScheduleJob(context.Background(), job)
	f.advance(t, job)
	if f.q.count() != 0 {
		t.Fatal("enqueued despite lookup failure")
	}
	if !f.log.Contains("helix: 503") {
		t.Fatal("lookup failure not logged")
	}
	if !f.s.Active("j1") {
		t.Fatal("lookup failure must not unregister the job")
	}
}

func TestScheduler_ScheduleJobComputesNextRun(t *testing.T) {
	f := newFixture()
	job := hourlyJob("j1")
	if err := f.s.ScheduleJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	want, _ := NextRun("0 * * * *", f.clock.Now())
	if job.NextRunAt == nil || !job.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt: got %v, want %v", job.NextRunAt, want)
	}
	if got := f.store.run("j1").next; got == nil || !got.Equal(want) {
		t.Fatalf("persisted nextRunAt: got %v, want %v", got, want)
	}
}

func TestScheduler_ScheduleJobPersistFailureLeavesNoTrigger(t *testing.T) {
	f := newFixture()
	f.store.updateErr = errors.New("job not found")
	job := hourlyJob("j1")
	if err := f.s.ScheduleJob(context.Background(), job); err == nil {
		t.Fatal("expected persist error")
	}
	if f.s.Active("j1") || f.s.h.Len() != 0 {
		t.Fatalf("trigger left behind: active=%v heap=%d", f.s.Active("j1"), f.s.h.Len())
	}
	if job.NextRunAt != nil {
		t.Fatalf("NextRunAt set on failure: %v", job.NextRunAt)
	}

	f.store.updateErr = nil
	if err := f.s.ScheduleJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if !f.s.Active("j1") {
		t.Fatal("job should be scheduled once the store recovers")
	}
}

func TestScheduler_ScheduleJobIsIdempotent(t *testing.T) {
	f := newFixture()
	job := hourlyJob("j1")
	f.s.ScheduleJob(context.Background(), job)
	f.s.ScheduleJob(context.Background(), job)
	if f.s.Len() != 1 || f.s.h.Len() != 1 {
		t.Fatalf("expected a single trigger, jobs=%d heap=%d", f.s.Len(), f.s.h.Len())
	}
	if n := f.advance(t, job); n != 1 {
		t.Fatalf("expected one fire, got %d", n)
	}
}

func TestScheduler_InvalidCronRejected(t *testing.T) {
	f := newFixture()
	job := hourlyJob("j1")
	f.s.ScheduleJob(context.Background(), job)
	job.CronExpression = "every hour"
	if err := f.s.ScheduleJob(context.Background(), job); !errors.Is(err, ErrInvalidCron) {
		t.Fatalf("expected ErrInvalidCron, got %v", err)
	}
	if f.s.Active("j1") {
		t.Fatal("invalid expression left a trigger installed")
	}
}

func TestScheduler_DisabledJobNotScheduled(t *testing.T) {
	f := newFixture()
	job := hourlyJob("j1")
	f.s.ScheduleJob(context.Background(), job)
	job.Enabled = false
	if err := f.s.ScheduleJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if f.s.Active("j1") || job.NextRunAt != nil {
		t.Fatalf("disabled job still scheduled: active=%v next=%v", f.s.Active("j1"), job.NextRunAt)
	}
}

func TestScheduler_RearmsAfterFire(t *testing.T) {
	f := newFixture()
	job := hourlyJob("j1")
	f.s.ScheduleJob(context.Background(), job)
	if n := f.advance(t, job); n != 1 {
		t.Fatalf("first fire: %d", n)
	}
	if n := f.s.runDue(context.Background(), f.clock.Now()); n != 0 {
		t.Fatalf("fired twice for the same tick: %d", n)
	}
	f.store.completed["v3"] = true
	if n := f.advance(t, job); n != 1 {
		t.Fatalf("second fire: %d", n)
	}
	if f.q.count() != 1 {
		t.Fatalf("expected dedup on second fire, enqueued %d", f.q.count())
	}
	run := f.store.run("j1")
	if run.last == nil || run.next == nil || !run.next.After(*run.last) {
		t.Fatalf("run timestamps not advanced: %+v", run)
	}
}

func TestScheduler_StopAll(t *testing.T) {
	f := newFixture()
	f.s.ScheduleJob(context.Background(), hourlyJob("j1"))
	f.s.ScheduleJob(context.Background(), hourlyJob("j2"))
	f.s.StopAll()
	if f.s.Len() != 0 {
		t.Fatalf("triggers left: %d", f.s.Len())
	}
	if n := f.advance(t, hourlyJob("j1")); n != 0 {
		t.Fatalf("fired %d after StopAll", n)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	f := newFixture()
	if err := f.s.RunNow(context.Background(), "j1"); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("expected ErrNotScheduled, got %v", err)
	}
	f.s.ScheduleJob(context.Background(), hourlyJob("j1"))
	if err := f.s.RunNow(context.Background(), "j1"); err != nil {
		t.Fatal(err)
	}
	f.s.Wait()
	if f.q.count() != 1 {
		t.Fatalf("RunNow enqueued %d", f.q.count())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"0 * * * *", true},
		{"*/15 2-4 * * 1-5", true},
		{"", false},
		{"0 * * *", false},
		{"0 0 * * * *", false},
		{"61 * * * *", false},
		{"@daily", false},
	}
	for _, tt := range tests {
		if got := Validate(tt.expr); got != tt.want {
			t.Errorf("Validate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
	for _, p := range Presets {
		if !Validate(p.Expression) {
			t.Errorf("preset %q has invalid expression %q", p.Label, p.Expression)
		}
	}
}
