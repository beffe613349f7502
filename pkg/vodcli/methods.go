package vodcli

import (
	"context"

	"github.com/warpdl/vodkeep/internal/api"
	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/server"
)

func (c *Client) GetDaemonVersion(ctx context.Context) (*server.VersionResult, error) {
	return invoke[server.VersionResult](ctx, c, "system.getVersion", nil)
}

func (c *Client) CheckDownloader(ctx context.Context) (*api.DownloaderStatus, error) {
	return invoke[api.DownloaderStatus](ctx, c, "system.checkDownloader", nil)
}

// Download queues an item and returns the task id.
func (c *Client) Download(ctx context.Context, itemID string, quality model.Quality) (string, error) {
	res, err := invoke[server.AddResult](ctx, c, "download.add", &server.AddParams{ItemID: itemID, Quality: quality})
	if err != nil {
		return "", err
	}
	return res.TaskID, nil
}

func (c *Client) GetDownload(ctx context.Context, taskID string) (*model.DownloadTask, error) {
	return invoke[model.DownloadTask](ctx, c, "download.get", &server.TaskParam{TaskID: taskID})
}

// Cancel reports whether a running download was signalled.
func (c *Client) Cancel(ctx context.Context, taskID string) (bool, error) {
	res, err := invoke[server.CancelResult](ctx, c, "download.cancel", &server.TaskParam{TaskID: taskID})
	if err != nil {
		return false, err
	}
	return res.Cancelled, nil
}

func (c *Client) List(ctx context.Context, statuses ...model.Status) ([]*model.DownloadTask, error) {
	res, err := invoke[server.ListResult](ctx, c, "download.list", &server.ListParams{Status: statuses})
	if err != nil {
		return nil, err
	}
	return res.Downloads, nil
}

func (c *Client) Remove(ctx context.Context, taskID string) error {
	_, err := invoke[server.EmptyResult](ctx, c, "download.remove", &server.TaskParam{TaskID: taskID})
	return err
}

// Flush removes finished tasks older than olderThan (a Go duration, empty
// for all).
func (c *Client) Flush(ctx context.Context, olderThan string) (int, error) {
	res, err := invoke[server.FlushResult](ctx, c, "download.flush", &server.FlushParams{OlderThan: olderThan})
	if err != nil {
		return 0, err
	}
	return res.Removed, nil
}

func (c *Client) QueueStatus(ctx context.Context) (*api.QueueStatus, error) {
	return invoke[api.QueueStatus](ctx, c, "queue.status", nil)
}

func (c *Client) SetConcurrency(ctx context.Context, limit int) (*api.QueueStatus, error) {
	return invoke[api.QueueStatus](ctx, c, "queue.setConcurrency", &server.ConcurrencyParams{Limit: limit})
}

func (c *Client) PauseQueue(ctx context.Context) (*api.QueueStatus, error) {
	return invoke[api.QueueStatus](ctx, c, "queue.pause", nil)
}

func (c *Client) ResumeQueue(ctx context.Context) (*api.QueueStatus, error) {
	return invoke[api.QueueStatus](ctx, c, "queue.resume", nil)
}

func (c *Client) AddJob(ctx context.Context, p api.AddJobParams) (*model.ScheduledJob, error) {
	return invoke[model.ScheduledJob](ctx, c, "job.add", &p)
}

func (c *Client) RemoveJob(ctx context.Context, jobID string) error {
	_, err := invoke[server.EmptyResult](ctx, c, "job.remove", &server.JobParam{JobID: jobID})
	return err
}

func (c *Client) ListJobs(ctx context.Context) ([]*model.ScheduledJob, error) {
	res, err := invoke[server.JobListResult](ctx, c, "job.list", nil)
	if err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

func (c *Client) SetJobEnabled(ctx context.Context, jobID string, enabled bool) (*model.ScheduledJob, error) {
	return invoke[model.ScheduledJob](ctx, c, "job.setEnabled", &server.SetEnabledParams{JobID: jobID, Enabled: enabled})
}

func (c *Client) RunJob(ctx context.Context, jobID string) error {
	_, err := invoke[server.EmptyResult](ctx, c, "job.run", &server.JobParam{JobID: jobID})
	return err
}

func (c *Client) Presets(ctx context.Context) (*server.PresetsResult, error) {
	return invoke[server.PresetsResult](ctx, c, "job.presets", nil)
}

func (c *Client) GetConfig(ctx context.Context) (*api.SettingsView, error) {
	return invoke[api.SettingsView](ctx, c, "config.get", nil)
}

func (c *Client) UpdateConfig(ctx context.Context, p api.SettingsPatch) (*api.SettingsView, error) {
	return invoke[api.SettingsView](ctx, c, "config.update", &p)
}

func (c *Client) Search(ctx context.Context, query string) ([]model.Owner, error) {
	res, err := invoke[server.SearchResult](ctx, c, "source.search", &server.SearchParams{Query: query})
	if err != nil {
		return nil, err
	}
	return res.Owners, nil
}

func (c *Client) Videos(ctx context.Context, ownerID string, limit int) ([]*model.Item, error) {
	res, err := invoke[server.VideosResult](ctx, c, "source.videos", &server.VideosParams{OwnerID: ownerID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Videos, nil
}
