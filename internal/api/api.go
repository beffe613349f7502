// Package api composes the store, download queue, scheduler, Helix client
// and downloader into the operations exposed to RPC clients.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/scheduler"
	"github.com/warpdl/vodkeep/internal/store"
	"github.com/warpdl/vodkeep/internal/twitch"
	"github.com/warpdl/vodkeep/pkg/logger"
)

const msgRestartInterrupted = "interrupted by daemon restart"

var (
	// ErrInvalidParams is returned for malformed requests.
	ErrInvalidParams = errors.New("invalid params")
	// ErrTaskBusy is returned when removing a task that is still queued or
	// running.
	ErrTaskBusy = errors.New("task is still queued or running")
)

// Source is the platform API.
type Source interface {
	SearchChannels(ctx context.Context, query string) ([]model.Owner, error)
	GetUser(ctx context.Context, id string) (*model.Owner, error)
	ListRecentItems(ctx context.Context, ownerID string, limit int) ([]*model.Item, error)
	GetItem(ctx context.Context, id string) (*model.Item, error)
}

// Downloader reports which external downloader is in use.
type Downloader interface {
	Binary() string
	Version(ctx context.Context) (string, error)
}

// SecretStore holds the platform client secret.
type SecretStore interface {
	Get() (value, source string, err error)
	Set(value string) error
}

// Options configures an Api.
type Options struct {
	Store      *store.Store
	Runner     queue.Runner
	Downloader Downloader
	Secrets    SecretStore
	// Source defaults to a Helix client whose credentials come from the
	// runtime settings and Secrets.
	Source Source
	// HTTPClient is used by the default Source.
	HTTPClient *http.Client
	// Defaults seed the runtime settings until the user saves their own.
	Defaults    model.Settings
	RecentLimit int
	Fs          afero.Fs
	Logger      logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Api is the daemon's service layer.
type Api struct {
	log        logger.Logger
	store      *store.Store
	queue      *queue.Queue
	sched      *scheduler.Scheduler
	source     Source
	downloader Downloader
	secrets    SecretStore
	tokens     *twitch.TokenCache
	now        func() time.Time

	mu       sync.Mutex
	settings model.Settings
	// updateMu serializes UpdateSettings so the queue ends up with the
	// values of the last persisted update.
	updateMu sync.Mutex
}

// New loads the runtime settings, fails tasks a previous run left
// unfinished and builds the queue and scheduler. Call Start to arm the
// persisted jobs.
func New(ctx context.Context, opts Options) (*Api, error) {
	if opts.Store == nil || opts.Runner == nil {
		return nil, errors.New("api: store and runner are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &Api{
		log:        logger.OrNop(opts.Logger),
		store:      opts.Store,
		source:     opts.Source,
		downloader: opts.Downloader,
		secrets:    opts.Secrets,
		now:        opts.Now,
	}

	settings, _, err := opts.Store.GetSettings(ctx, opts.Defaults)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings.MaxConcurrentDownloads < 1 {
		settings.MaxConcurrentDownloads = queue.DefaultMaxConcurrent
	}
	settings.PreferredQuality = settings.PreferredQuality.OrDefault(model.QualitySource)
	a.settings = settings

	if a.source == nil {
		a.tokens = twitch.NewTokenCache(twitch.TokenOptions{
			Credentials: a.credentials,
			HTTPClient:  opts.HTTPClient,
		})
		a.source = twitch.NewClient(twitch.Options{
			Tokens:     a.tokens,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
		})
	}

	n, err := opts.Store.MarkInterrupted(ctx, msgRestartInterrupted)
	if err != nil {
		return nil, fmt.Errorf("recover unfinished tasks: %w", err)
	}
	if n > 0 {
		a.log.Warning("Marked %d unfinished task(s) from a previous run as failed", n)
	}

	a.queue, err = queue.New(queue.Options{
		Store:         opts.Store,
		Lookup:        a.source,
		Runner:        opts.Runner,
		Fs:            opts.Fs,
		DownloadDir:   settings.DownloadPath,
		MaxConcurrent: settings.MaxConcurrentDownloads,
		Logger:        opts.Logger,
		Now:           opts.Now,
	})
	if err != nil {
		return nil, err
	}
	a.sched = scheduler.New(scheduler.Options{
		Source:      a.source,
		Queue:       a.queue,
		Store:       opts.Store,
		Logger:      opts.Logger,
		RecentLimit: opts.RecentLimit,
		Now:         opts.Now,
	})
	return a, nil
}

// Start runs the scheduler loop until ctx is cancelled and arms every
// enabled job. A job whose next run passed while the daemon was down is
// run once immediately.
func (a *Api) Start(ctx context.Context) error {
	a.sched.Start(ctx)
	jobs, err := a.store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	now := a.now()
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		missed := job.NextRunAt != nil && job.NextRunAt.Before(now)
		if err := a.sched.ScheduleJob(ctx, job); err != nil {
			a.log.Error("job %s not scheduled: %v", job.ID, err)
			continue
		}
		if missed {
			a.log.Info("job %s missed a run while the daemon was down, running now", job.ID)
			if err := a.sched.RunNow(ctx, job.ID); err != nil {
				a.log.Warning("job %s: %v", job.ID, err)
			}
		}
	}
	return nil
}

// Subscribe sets the single receiver of queue events.
func (a *Api) Subscribe(fn queue.Observer) {
	a.queue.SetObserver(fn)
}

// Close stops all triggers, waits for in-flight fires and shuts the queue
// down. Running downloads are terminated and recorded as failed.
func (a *Api) Close(ctx context.Context) error {
	a.sched.StopAll()
	a.sched.Wait()
	return a.queue.Close(ctx)
}
