package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/internal/model"
)

var (
	dlQuality string
	dlWatch   bool

	dlFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "quality, q",
			Usage:       "quality to download, e.g. source, 1080p60, 720p, audio_only (default: preferred quality)",
			Destination: &dlQuality,
		},
		cli.BoolFlag{
			Name:        "watch, w",
			Usage:       "follow the download progress after queueing it",
			Destination: &dlWatch,
		},
	}
)

var errNoTaskID = errors.New("task id is required")

func download(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	itemID := ctx.Args().First()
	if itemID == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("video id is required"))
	}
	quality := model.Quality(dlQuality)
	if quality != "" {
		if err := quality.Validate(); err != nil {
			return common.PrintErrWithCmdHelp(ctx, err)
		}
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "download", "new_client", err)
		return nil
	}
	defer client.Close()
	taskID, err := client.Download(rctx, itemID, quality)
	if err != nil {
		common.PrintRuntimeErr(ctx, "download", "add", err)
		return nil
	}
	fmt.Printf("Queued %s as task %s\n", itemID, taskID)
	if dlWatch {
		return watchTasks(ctx, client, taskID)
	}
	return nil
}

func info(ctx *cli.Context) error {
	taskID := ctx.Args().First()
	if taskID == "" {
		return common.PrintErrWithCmdHelp(ctx, errNoTaskID)
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "info", "new_client", err)
		return nil
	}
	defer client.Close()
	t, err := client.GetDownload(rctx, taskID)
	if err != nil {
		common.PrintRuntimeErr(ctx, "info", "get", err)
		return nil
	}
	fmt.Print(formatTask(t, time.Now()))
	return nil
}

func formatTask(t *model.DownloadTask, now time.Time) string {
	txt := fmt.Sprintf("Task:\t\t%s\n", t.ID)
	txt += fmt.Sprintf("Video:\t\t%s\n", t.SourceItemID)
	if t.Title != "" {
		txt += fmt.Sprintf("Title:\t\t%s\n", t.Title)
	}
	if t.OwnerName != "" {
		txt += fmt.Sprintf("Channel:\t%s\n", t.OwnerName)
	}
	txt += fmt.Sprintf("Quality:\t%s\n", t.Quality)
	txt += fmt.Sprintf("Status:\t\t%s\n", t.Status)
	txt += fmt.Sprintf("Progress:\t%.1f%%", t.ProgressPercent)
	if t.BytesTotal > 0 {
		txt += fmt.Sprintf(" (%s / %s)",
			humanize.IBytes(uint64(t.BytesDownloaded)), humanize.IBytes(uint64(t.BytesTotal)))
	}
	txt += "\n"
	if t.OutputPath != "" {
		txt += fmt.Sprintf("Output:\t\t%s\n", t.OutputPath)
	}
	if t.ErrorMessage != "" {
		txt += fmt.Sprintf("Error:\t\t%s\n", t.ErrorMessage)
	}
	txt += fmt.Sprintf("Created:\t%s\n", humanize.RelTime(t.CreatedAt, now, "ago", "from now"))
	if t.CompletedAt != nil {
		txt += fmt.Sprintf("Finished:\t%s\n", humanize.RelTime(*t.CompletedAt, now, "ago", "from now"))
	}
	return txt
}

func cancel(ctx *cli.Context) error {
	taskID := ctx.Args().First()
	if taskID == "" {
		return common.PrintErrWithCmdHelp(ctx, errNoTaskID)
	}
	rctx, done := rpcContext()
	defer done()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "cancel", "new_client", err)
		return nil
	}
	defer client.Close()
	cancelled, err := client.Cancel(rctx, taskID)
	if err != nil {
		common.PrintRuntimeErr(ctx, "cancel", "cancel", err)
		return nil
	}
	if cancelled {
		fmt.Printf("Cancelled download %s\n", taskID)
	} else {
		fmt.Printf("Download %s was not running and has been dropped\n", taskID)
	}
	return nil
}

func remove(ctx *cli.Context) error {
	taskID := ctx.Args().First()
	if taskID == "" {
		return common.PrintErrWithCmdHelp(ctx, errNoTaskID)
	}
	rctx, done := rpcContext()
	defer done()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "remove", "new_client", err)
		return nil
	}
	defer client.Close()
	if err := client.Remove(rctx, taskID); err != nil {
		common.PrintRuntimeErr(ctx, "remove", "remove", err)
		return nil
	}
	fmt.Printf("Removed download %s\n", taskID)
	return nil
}
