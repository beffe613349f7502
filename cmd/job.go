package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/internal/api"
	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/scheduler"
	"github.com/warpdl/vodkeep/pkg/vodcli"
)

var (
	jobOwner   string
	jobName    string
	jobCron    string
	jobPreset  int
	jobQuality string

	jobAddFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "owner, o",
			Usage:       "id of the channel to back up (see \"vodkeep search\")",
			Destination: &jobOwner,
		},
		cli.StringFlag{
			Name:        "name, n",
			Usage:       "display name of the channel (default: looked up)",
			Destination: &jobName,
		},
		cli.StringFlag{
			Name:        "cron, c",
			Usage:       "5-field cron expression, e.g. \"0 */4 * * *\"",
			Destination: &jobCron,
		},
		cli.IntFlag{
			Name:        "preset, p",
			Usage:       "use the numbered schedule from \"vodkeep job presets\" instead of --cron",
			Destination: &jobPreset,
		},
		cli.StringFlag{
			Name:        "quality, q",
			Usage:       "quality to download (default: source)",
			Destination: &jobQuality,
		},
	}
)

var jobCommands = []cli.Command{
	{
		Name:               "add",
		Usage:              "schedule backups of a channel",
		Action:             jobAdd,
		Flags:              jobAddFlags,
		OnUsageError:       common.UsageErrorCallback,
		CustomHelpTemplate: CMD_HELP_TEMPL,
	},
	{
		Name:         "remove",
		Aliases:      []string{"rm"},
		Usage:        "delete a job",
		UsageText:    "<job id>",
		Action:       jobRemove,
		OnUsageError: common.UsageErrorCallback,
	},
	{
		Name:         "list",
		Aliases:      []string{"l"},
		Usage:        "list scheduled jobs",
		Action:       jobList,
		OnUsageError: common.UsageErrorCallback,
	},
	{
		Name:         "enable",
		Usage:        "resume a disabled job",
		UsageText:    "<job id>",
		Action:       jobEnable,
		OnUsageError: common.UsageErrorCallback,
	},
	{
		Name:         "disable",
		Usage:        "stop a job without deleting it",
		UsageText:    "<job id>",
		Action:       jobDisable,
		OnUsageError: common.UsageErrorCallback,
	},
	{
		Name:         "run",
		Usage:        "run a job now",
		UsageText:    "<job id>",
		Action:       jobRun,
		OnUsageError: common.UsageErrorCallback,
	},
	{
		Name:   "presets",
		Usage:  "list common schedules",
		Action: jobPresets,
	},
}

// jobExpression resolves the schedule from --cron or --preset.
func jobExpression() (string, error) {
	switch {
	case jobCron != "" && jobPreset != 0:
		return "", errors.New("use either --cron or --preset, not both")
	case jobCron != "":
		return jobCron, nil
	case jobPreset != 0:
		if jobPreset < 1 || jobPreset > len(scheduler.Presets) {
			return "", fmt.Errorf("preset must be between 1 and %d", len(scheduler.Presets))
		}
		return scheduler.Presets[jobPreset-1].Expression, nil
	}
	return "", errors.New("a schedule is required: pass --cron or --preset")
}

func jobAdd(ctx *cli.Context) error {
	if jobOwner == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("--owner is required"))
	}
	expr, err := jobExpression()
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	if !scheduler.Validate(expr) {
		return common.PrintErrWithCmdHelp(ctx, fmt.Errorf("invalid cron expression %q", expr))
	}
	quality := model.Quality(jobQuality)
	if quality != "" {
		if err := quality.Validate(); err != nil {
			return common.PrintErrWithCmdHelp(ctx, err)
		}
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "job", "new_client", err)
		return nil
	}
	defer client.Close()
	job, err := client.AddJob(rctx, api.AddJobParams{
		OwnerID:        jobOwner,
		OwnerName:      jobName,
		CronExpression: expr,
		Quality:        quality,
	})
	if err != nil {
		common.PrintRuntimeErr(ctx, "job", "add", err)
		return nil
	}
	fmt.Printf("Added job %s for %s (%s)\n", job.ID, job.OwnerName, job.CronExpression)
	if job.NextRunAt != nil {
		fmt.Printf("Next run %s\n", humanize.Time(*job.NextRunAt))
	}
	return nil
}

// jobIDAction connects to the daemon and runs fn with the job id argument.
func jobIDAction(ctx *cli.Context, action string, fn func(ctx context.Context, c *vodcli.Client, id string) error) error {
	id := ctx.Args().First()
	if id == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("job id is required"))
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "job", "new_client", err)
		return nil
	}
	defer client.Close()
	if err := fn(rctx, client, id); err != nil {
		common.PrintRuntimeErr(ctx, "job", action, err)
	}
	return nil
}

func jobRemove(ctx *cli.Context) error {
	return jobIDAction(ctx, "remove", func(rctx context.Context, c *vodcli.Client, id string) error {
		if err := c.RemoveJob(rctx, id); err != nil {
			return err
		}
		fmt.Printf("Removed job %s\n", id)
		return nil
	})
}

func jobEnable(ctx *cli.Context) error {
	return jobSetEnabled(ctx, true)
}

func jobDisable(ctx *cli.Context) error {
	return jobSetEnabled(ctx, false)
}

func jobSetEnabled(ctx *cli.Context, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	return jobIDAction(ctx, action, func(rctx context.Context, c *vodcli.Client, id string) error {
		job, err := c.SetJobEnabled(rctx, id, enabled)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s is now %s\n", job.ID, enabledLabel(job.Enabled))
		return nil
	})
}

func jobRun(ctx *cli.Context) error {
	return jobIDAction(ctx, "run", func(rctx context.Context, c *vodcli.Client, id string) error {
		if err := c.RunJob(rctx, id); err != nil {
			return err
		}
		fmt.Printf("Job %s started\n", id)
		return nil
	})
}

func jobList(ctx *cli.Context) error {
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "job", "new_client", err)
		return nil
	}
	defer client.Close()
	jobs, err := client.ListJobs(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "job", "list", err)
		return nil
	}
	if len(jobs) == 0 {
		fmt.Println("vodkeep: no jobs scheduled")
		return nil
	}
	fmt.Println(formatJobTable(jobs, time.Now()))
	return nil
}

func jobPresets(ctx *cli.Context) error {
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "job", "new_client", err)
		return nil
	}
	defer client.Close()
	res, err := client.Presets(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "job", "presets", err)
		return nil
	}
	for i, p := range res.Presets {
		fmt.Printf("%2d. %-24s %s\n", i+1, p.Label, p.Expression)
	}
	return nil
}

const jobTableRule = "------------------------------------------------------------------------------------------------------------"

func formatJobTable(jobs []*model.ScheduledJob, now time.Time) string {
	txt := "Scheduled jobs:"
	txt += "\n\n" + jobTableRule
	txt += "\n|                Job ID                |     Channel     |      Cron      |  Quality   |  State   |  Next run  |"
	txt += "\n|--------------------------------------|-----------------|----------------|------------|----------|------------|"
	for _, j := range jobs {
		next := "-"
		if j.Enabled && j.NextRunAt != nil {
			next = humanize.RelTime(*j.NextRunAt, now, "ago", "from now")
		}
		txt += fmt.Sprintf("\n| %s | %s | %s | %s | %s | %s |",
			common.Beaut(j.ID, 36),
			common.Beaut(common.Truncate(j.OwnerName, 15), 15),
			common.Beaut(common.Truncate(j.CronExpression, 14), 14),
			common.Beaut(string(j.Quality), 10),
			common.Beaut(enabledLabel(j.Enabled), 8),
			common.Beaut(common.Truncate(next, 10), 10),
		)
	}
	txt += "\n" + jobTableRule
	return txt
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
