package model

import "time"

// DownloadTask is one attempt to back up a single source item.
type DownloadTask struct {
	ID              string     `json:"id"`
	SourceItemID    string     `json:"sourceItemId"`
	OwnerID         string     `json:"ownerId"`
	OwnerName       string     `json:"ownerName"`
	Title           string     `json:"title"`
	URL             string     `json:"url,omitempty"`
	Quality         Quality    `json:"quality"`
	Status          Status     `json:"status"`
	ProgressPercent float64    `json:"progressPercent"`
	BytesDownloaded int64      `json:"bytesDownloaded,omitempty"`
	BytesTotal      int64      `json:"bytesTotal,omitempty"`
	OutputPath      string     `json:"outputPath,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a copy that shares no pointers with t.
func (t *DownloadTask) Clone() *DownloadTask {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// ScheduledJob is a recurring rule that periodically checks an owner for new
// items to back up.
type ScheduledJob struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	OwnerName      string     `json:"ownerName"`
	CronExpression string     `json:"cronExpression"`
	Quality        Quality    `json:"quality"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
}

// Clone returns a copy that shares no pointers with j.
func (j *ScheduledJob) Clone() *ScheduledJob {
	c := *j
	if j.LastRunAt != nil {
		at := *j.LastRunAt
		c.LastRunAt = &at
	}
	if j.NextRunAt != nil {
		at := *j.NextRunAt
		c.NextRunAt = &at
	}
	return &c
}

// Item is one archived video on the source platform.
type Item struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	OwnerName    string    `json:"ownerName"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
	Duration     string    `json:"duration,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	ViewCount    int64     `json:"viewCount,omitempty"`
}

// Owner is the content-producing account whose items are backed up.
type Owner struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"displayName"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	IsLive          bool   `json:"isLive,omitempty"`
}

// Settings is the runtime configuration persisted next to tasks and jobs.
// The client secret is deliberately absent; it lives in the OS keyring.
type Settings struct {
	ClientID               string  `json:"clientId"`
	DownloadPath           string  `json:"downloadPath"`
	MaxConcurrentDownloads int     `json:"maxConcurrentDownloads"`
	PreferredQuality       Quality `json:"preferredQuality"`
}
