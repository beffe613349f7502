package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/scheduler"
)

// AddJobParams describes a new scheduled job.
type AddJobParams struct {
	OwnerID        string        `json:"ownerId"`
	OwnerName      string        `json:"ownerName,omitempty"`
	CronExpression string        `json:"cronExpression"`
	Quality        model.Quality `json:"quality,omitempty"`
}

// AddJob persists an enabled job and arms its trigger. A missing owner name
// is looked up.
func (a *Api) AddJob(ctx context.Context, p AddJobParams) (*model.ScheduledJob, error) {
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	p.CronExpression = strings.TrimSpace(p.CronExpression)
	if p.OwnerID == "" {
		return nil, fmt.Errorf("%w: missing owner id", ErrInvalidParams)
	}
	if !scheduler.Validate(p.CronExpression) {
		return nil, fmt.Errorf("%w: %q", scheduler.ErrInvalidCron, p.CronExpression)
	}
	if p.Quality == "" {
		p.Quality = a.Settings().PreferredQuality
	}
	if err := p.Quality.Validate(); err != nil {
		return nil, err
	}
	if p.OwnerName == "" {
		owner, err := a.source.GetUser(ctx, p.OwnerID)
		if err != nil {
			return nil, err
		}
		p.OwnerName = owner.DisplayName
	}

	job := &model.ScheduledJob{
		ID:             uuid.NewString(),
		OwnerID:        p.OwnerID,
		OwnerName:      p.OwnerName,
		CronExpression: p.CronExpression,
		Quality:        p.Quality,
		Enabled:        true,
	}
	if err := a.store.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := a.sched.ScheduleJob(ctx, job); err != nil {
		return nil, err
	}
	a.log.Info("Added job %s for %s (%s)", job.ID, job.OwnerName, job.CronExpression)
	return job, nil
}

// RemoveJob stops the job's trigger and deletes it.
func (a *Api) RemoveJob(ctx context.Context, id string) error {
	a.sched.StopJob(id)
	return a.store.RemoveJob(ctx, id)
}

// ListJobs returns every job.
func (a *Api) ListJobs(ctx context.Context) ([]*model.ScheduledJob, error) {
	jobs, err := a.store.ListJobs(ctx)
	if jobs == nil {
		jobs = []*model.ScheduledJob{}
	}
	return jobs, err
}

// SetJobEnabled enables or disables a job, arming or stopping its trigger.
func (a *Api) SetJobEnabled(ctx context.Context, id string, enabled bool) (*model.ScheduledJob, error) {
	job, err := a.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Enabled = enabled
	if err := a.store.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := a.sched.ScheduleJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RunJob fires an enabled job immediately.
func (a *Api) RunJob(ctx context.Context, id string) error {
	if _, err := a.store.GetJob(ctx, id); err != nil {
		return err
	}
	return a.sched.RunNow(ctx, id)
}

// Presets returns the common cron schedules.
func (a *Api) Presets() []scheduler.Preset {
	return scheduler.Presets
}
