package server

import (
	"context"
	"errors"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/warpdl/vodkeep/internal/api"
	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/scheduler"
	"github.com/warpdl/vodkeep/internal/store"
	"github.com/warpdl/vodkeep/internal/twitch"
	"github.com/warpdl/vodkeep/pkg/logger"
)

// Custom JSON-RPC error codes.
const (
	codeNotFound      = jrpc2.Code(-32001)
	codeNotActive     = jrpc2.Code(-32002)
	codeConfiguration = jrpc2.Code(-32003)
	codeUpstream      = jrpc2.Code(-32004)
	codeInvalidParams = jrpc2.Code(-32602)
)

// RPCConfig holds configuration for the JSON-RPC endpoint.
type RPCConfig struct {
	Secret    string // Bearer token; empty rejects every request
	Version   string
	Commit    string
	BuildType string
	// PushTimeout bounds each write to a WebSocket session. Defaults to
	// DefaultPushTimeout.
	PushTimeout time.Duration
}

// RPCServer serves the API over JSON-RPC 2.0.
type RPCServer struct {
	api      *api.Api
	methods  handler.Map
	bridge   jhttp.Bridge
	notifier *RPCNotifier
	log      logger.Logger

	secret    string
	version   string
	commit    string
	buildType string
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// AddParams is the input for download.add.
type AddParams struct {
	ItemID  string        `json:"itemId"`
	Quality model.Quality `json:"quality,omitempty"`
}

// AddResult is the response for download.add.
type AddResult struct {
	TaskID string `json:"taskId"`
}

// TaskParam is a common input with just a task id.
type TaskParam struct {
	TaskID string `json:"taskId"`
}

// CancelResult is the response for download.cancel.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
}

// ListParams is the input for download.list.
type ListParams struct {
	Status []model.Status `json:"status,omitempty"`
}

// ListResult is the response for download.list.
type ListResult struct {
	Downloads []*model.DownloadTask `json:"downloads"`
}

// FlushParams is the input for download.flush.
type FlushParams struct {
	// OlderThan is a Go duration ("72h"); empty flushes every finished task.
	OlderThan string `json:"olderThan,omitempty"`
}

// FlushResult is the response for download.flush.
type FlushResult struct {
	Removed int `json:"removed"`
}

// ConcurrencyParams is the input for queue.setConcurrency.
type ConcurrencyParams struct {
	Limit int `json:"limit"`
}

// JobParam is a common input with just a job id.
type JobParam struct {
	JobID string `json:"jobId"`
}

// SetEnabledParams is the input for job.setEnabled.
type SetEnabledParams struct {
	JobID   string `json:"jobId"`
	Enabled bool   `json:"enabled"`
}

// JobListResult is the response for job.list.
type JobListResult struct {
	Jobs []*model.ScheduledJob `json:"jobs"`
}

// PresetsResult is the response for job.presets.
type PresetsResult struct {
	Presets []scheduler.Preset `json:"presets"`
}

// SearchParams is the input for source.search.
type SearchParams struct {
	Query string `json:"query"`
}

// SearchResult is the response for source.search.
type SearchResult struct {
	Owners []model.Owner `json:"owners"`
}

// VideosParams is the input for source.videos.
type VideosParams struct {
	OwnerID string `json:"ownerId"`
	Limit   int    `json:"limit,omitempty"`
}

// VideosResult is the response for source.videos.
type VideosResult struct {
	Videos []*model.Item `json:"videos"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}

// NewRPCServer creates the method table and HTTP bridge, and subscribes to
// queue events so they are pushed to WebSocket sessions.
func NewRPCServer(cfg *RPCConfig, a *api.Api, l logger.Logger) *RPCServer {
	rs := &RPCServer{
		api:       a,
		notifier:  NewRPCNotifier(l),
		log:       logger.OrNop(l),
		secret:    cfg.Secret,
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildType: cfg.BuildType,
	}

	rs.methods = handler.Map{
		"system.getVersion":      handler.New(rs.systemGetVersion),
		"system.checkDownloader": handler.New(rs.systemCheckDownloader),
		"download.add":           handler.New(rs.downloadAdd),
		"download.get":           handler.New(rs.downloadGet),
		"download.cancel":        handler.New(rs.downloadCancel),
		"download.list":          handler.New(rs.downloadList),
		"download.remove":        handler.New(rs.downloadRemove),
		"download.flush":         handler.New(rs.downloadFlush),
		"queue.status":           handler.New(rs.queueStatus),
		"queue.setConcurrency":   handler.New(rs.queueSetConcurrency),
		"queue.pause":            handler.New(rs.queuePause),
		"queue.resume":           handler.New(rs.queueResume),
		"job.add":                handler.New(rs.jobAdd),
		"job.remove":             handler.New(rs.jobRemove),
		"job.list":               handler.New(rs.jobList),
		"job.setEnabled":         handler.New(rs.jobSetEnabled),
		"job.run":                handler.New(rs.jobRun),
		"job.presets":            handler.New(rs.jobPresets),
		"config.get":             handler.New(rs.configGet),
		"config.update":          handler.New(rs.configUpdate),
		"source.search":          handler.New(rs.sourceSearch),
		"source.videos":          handler.New(rs.sourceVideos),
	}
	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	if cfg.PushTimeout > 0 {
		rs.notifier.timeout = cfg.PushTimeout
	}

	a.Subscribe(func(ev queue.Event) {
		rs.notifier.Broadcast(MethodProgress, ev)
	})
	return rs
}

// Notifier returns the WebSocket push fan-out.
func (rs *RPCServer) Notifier() *RPCNotifier {
	return rs.notifier
}

// rpcError maps service errors to JSON-RPC error codes.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	var code jrpc2.Code
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, twitch.ErrItemNotFound),
		errors.Is(err, twitch.ErrOwnerNotFound):
		code = codeNotFound
	case errors.Is(err, api.ErrTaskBusy),
		errors.Is(err, scheduler.ErrNotScheduled),
		errors.Is(err, queue.ErrClosed):
		code = codeNotActive
	case errors.Is(err, api.ErrInvalidParams),
		errors.Is(err, scheduler.ErrInvalidCron),
		errors.Is(err, model.ErrInvalidQuality),
		errors.Is(err, queue.ErrInvalidConcurrency):
		code = codeInvalidParams
	case errors.Is(err, twitch.ErrMissingCredentials),
		errors.Is(err, queue.ErrInvalidDownloadPath):
		code = codeConfiguration
	case errors.Is(err, twitch.ErrUnauthorized),
		errors.Is(err, twitch.ErrRequestFailed):
		code = codeUpstream
	default:
		return err
	}
	return &jrpc2.Error{Code: code, Message: err.Error()}
}

func missingParam(name string) error {
	return &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: " + name}
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

func (rs *RPCServer) systemCheckDownloader(ctx context.Context) (*api.DownloaderStatus, error) {
	st := rs.api.CheckDownloader(ctx)
	return &st, nil
}

func (rs *RPCServer) downloadAdd(ctx context.Context, p *AddParams) (*AddResult, error) {
	if p.ItemID == "" {
		return nil, missingParam("itemId")
	}
	id, err := rs.api.Download(ctx, p.ItemID, p.Quality)
	if err != nil {
		return nil, rpcError(err)
	}
	return &AddResult{TaskID: id}, nil
}

func (rs *RPCServer) downloadGet(ctx context.Context, p *TaskParam) (*model.DownloadTask, error) {
	if p.TaskID == "" {
		return nil, missingParam("taskId")
	}
	t, err := rs.api.GetDownload(ctx, p.TaskID)
	return t, rpcError(err)
}

func (rs *RPCServer) downloadCancel(ctx context.Context, p *TaskParam) (*CancelResult, error) {
	if p.TaskID == "" {
		return nil, missingParam("taskId")
	}
	ok, err := rs.api.Cancel(ctx, p.TaskID)
	if err != nil {
		return nil, rpcError(err)
	}
	return &CancelResult{Cancelled: ok}, nil
}

func (rs *RPCServer) downloadList(ctx context.Context, p *ListParams) (*ListResult, error) {
	tasks, err := rs.api.ListDownloads(ctx, p.Status...)
	if err != nil {
		return nil, rpcError(err)
	}
	return &ListResult{Downloads: tasks}, nil
}

func (rs *RPCServer) downloadRemove(ctx context.Context, p *TaskParam) (*EmptyResult, error) {
	if p.TaskID == "" {
		return nil, missingParam("taskId")
	}
	if err := rs.api.RemoveDownload(ctx, p.TaskID); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) downloadFlush(ctx context.Context, p *FlushParams) (*FlushResult, error) {
	var age time.Duration
	if p.OlderThan != "" {
		d, err := time.ParseDuration(p.OlderThan)
		if err != nil {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid olderThan: " + err.Error()}
		}
		age = d
	}
	n, err := rs.api.Flush(ctx, age)
	if err != nil {
		return nil, rpcError(err)
	}
	return &FlushResult{Removed: n}, nil
}

func (rs *RPCServer) queueStatus(_ context.Context) (*api.QueueStatus, error) {
	st := rs.api.QueueStatus()
	return &st, nil
}

func (rs *RPCServer) queueSetConcurrency(ctx context.Context, p *ConcurrencyParams) (*api.QueueStatus, error) {
	if err := rs.api.SetConcurrency(ctx, p.Limit); err != nil {
		return nil, rpcError(err)
	}
	st := rs.api.QueueStatus()
	return &st, nil
}

func (rs *RPCServer) queuePause(_ context.Context) (*api.QueueStatus, error) {
	rs.api.PauseQueue()
	st := rs.api.QueueStatus()
	return &st, nil
}

func (rs *RPCServer) queueResume(_ context.Context) (*api.QueueStatus, error) {
	rs.api.ResumeQueue()
	st := rs.api.QueueStatus()
	return &st, nil
}

func (rs *RPCServer) jobAdd(ctx context.Context, p *api.AddJobParams) (*model.ScheduledJob, error) {
	if p.OwnerID == "" {
		return nil, missingParam("ownerId")
	}
	if p.CronExpression == "" {
		return nil, missingParam("cronExpression")
	}
	job, err := rs.api.AddJob(ctx, *p)
	return job, rpcError(err)
}

func (rs *RPCServer) jobRemove(ctx context.Context, p *JobParam) (*EmptyResult, error) {
	if p.JobID == "" {
		return nil, missingParam("jobId")
	}
	if err := rs.api.RemoveJob(ctx, p.JobID); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) jobList(ctx context.Context) (*JobListResult, error) {
	jobs, err := rs.api.ListJobs(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return &JobListResult{Jobs: jobs}, nil
}

func (rs *RPCServer) jobSetEnabled(ctx context.Context, p *SetEnabledParams) (*model.ScheduledJob, error) {
	if p.JobID == "" {
		return nil, missingParam("jobId")
	}
	job, err := rs.api.SetJobEnabled(ctx, p.JobID, p.Enabled)
	return job, rpcError(err)
}

// jobRun fires the job detached from the request so the check outlives
// the call.
func (rs *RPCServer) jobRun(ctx context.Context, p *JobParam) (*EmptyResult, error) {
	if p.JobID == "" {
		return nil, missingParam("jobId")
	}
	if err := rs.api.RunJob(context.WithoutCancel(ctx), p.JobID); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) jobPresets(_ context.Context) (*PresetsResult, error) {
	return &PresetsResult{Presets: rs.api.Presets()}, nil
}

func (rs *RPCServer) configGet(_ context.Context) (*api.SettingsView, error) {
	v := rs.api.SettingsView()
	return &v, nil
}

func (rs *RPCServer) configUpdate(ctx context.Context, p *api.SettingsPatch) (*api.SettingsView, error) {
	if _, err := rs.api.UpdateSettings(ctx, *p); err != nil {
		return nil, rpcError(err)
	}
	v := rs.api.SettingsView()
	return &v, nil
}

func (rs *RPCServer) sourceSearch(ctx context.Context, p *SearchParams) (*SearchResult, error) {
	owners, err := rs.api.SearchOwners(ctx, p.Query)
	if err != nil {
		return nil, rpcError(err)
	}
	return &SearchResult{Owners: owners}, nil
}

func (rs *RPCServer) sourceVideos(ctx context.Context, p *VideosParams) (*VideosResult, error) {
	if p.OwnerID == "" {
		return nil, missingParam("ownerId")
	}
	items, err := rs.api.ListItems(ctx, p.OwnerID, p.Limit)
	if err != nil {
		return nil, rpcError(err)
	}
	return &VideosResult{Videos: items}, nil
}

// Close shuts down the jrpc2 bridge, releasing internal goroutines.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
}
