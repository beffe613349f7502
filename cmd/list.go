package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/internal/model"
)

var (
	showPending     bool
	showDownloading bool
	showCompleted   bool
	showFailed      bool

	lsFlags = []cli.Flag{
		cli.BoolFlag{
			Name:        "pending, p",
			Usage:       "list queued downloads",
			Destination: &showPending,
		},
		cli.BoolFlag{
			Name:        "downloading, d",
			Usage:       "list running downloads",
			Destination: &showDownloading,
		},
		cli.BoolFlag{
			Name:        "completed, c",
			Usage:       "list completed downloads",
			Destination: &showCompleted,
		},
		cli.BoolFlag{
			Name:        "failed, f",
			Usage:       "list failed downloads",
			Destination: &showFailed,
		},
	}
)

// listStatuses returns the statuses selected by the list flags; none
// selected means every status.
func listStatuses() []model.Status {
	var statuses []model.Status
	if showPending {
		statuses = append(statuses, model.StatusPending)
	}
	if showDownloading {
		statuses = append(statuses, model.StatusDownloading)
	}
	if showCompleted {
		statuses = append(statuses, model.StatusCompleted)
	}
	if showFailed {
		statuses = append(statuses, model.StatusFailed)
	}
	return statuses
}

func list(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "list", "new_client", err)
		return nil
	}
	defer client.Close()
	tasks, err := client.List(rctx, listStatuses()...)
	if err != nil {
		common.PrintRuntimeErr(ctx, "list", "get_list", err)
		return nil
	}
	if len(tasks) == 0 {
		fmt.Println("vodkeep: no downloads found")
		return nil
	}
	fmt.Println(formatTaskTable(tasks, time.Now()))
	return nil
}

const taskTableRule = "------------------------------------------------------------------------------------------------"

func formatTaskTable(tasks []*model.DownloadTask, now time.Time) string {
	txt := "Here are your downloads:"
	txt += "\n\n" + taskTableRule
	txt += "\n|                Task ID               |         Title         |   Status    |  Done  |   Size   |"
	txt += "\n|--------------------------------------|-----------------------|-------------|--------|----------|"
	for _, t := range tasks {
		title := t.Title
		if title == "" {
			title = t.SourceItemID
		}
		title = common.Beaut(common.Truncate(title, 21), 21)
		perc := fmt.Sprintf("%.0f%%", t.ProgressPercent)
		size := "-"
		if t.BytesTotal > 0 {
			size = humanize.IBytes(uint64(t.BytesTotal))
		}
		txt += fmt.Sprintf("\n| %s | %s | %s | %s | %s |",
			common.Beaut(t.ID, 36),
			title,
			common.Beaut(string(t.Status), 11),
			common.Beaut(perc, 6),
			common.Beaut(size, 8),
		)
		if t.Status == model.StatusFailed && t.ErrorMessage != "" {
			txt += fmt.Sprintf("\n|   └ %s", common.Truncate(t.ErrorMessage, 88))
		}
	}
	txt += "\n" + taskTableRule
	txt += fmt.Sprintf("\n%d download(s), newest %s", len(tasks),
		humanize.RelTime(tasks[len(tasks)-1].CreatedAt, now, "ago", "from now"))
	return txt
}
