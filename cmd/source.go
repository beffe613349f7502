package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/internal/model"
)

var (
	vidLimit int

	vidFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "limit, n",
			Usage:       "how many videos to list (max 100)",
			Value:       20,
			Destination: &vidLimit,
		},
	}
)

func search(ctx *cli.Context) error {
	query := strings.TrimSpace(strings.Join(ctx.Args(), " "))
	if query == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("search query is required"))
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "search", "new_client", err)
		return nil
	}
	defer client.Close()
	owners, err := client.Search(rctx, query)
	if err != nil {
		common.PrintRuntimeErr(ctx, "search", "search", err)
		return nil
	}
	if len(owners) == 0 {
		fmt.Printf("vodkeep: no channels match %q\n", query)
		return nil
	}
	fmt.Println(formatOwners(owners))
	return nil
}

func formatOwners(owners []model.Owner) string {
	var b strings.Builder
	for _, o := range owners {
		live := ""
		if o.IsLive {
			live = "  [live]"
		}
		fmt.Fprintf(&b, "%-12s %-25s %s%s\n", o.ID, o.DisplayName, o.Login, live)
	}
	return strings.TrimRight(b.String(), "\n")
}

func videos(ctx *cli.Context) error {
	ownerID := ctx.Args().First()
	if ownerID == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("channel id is required"))
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "videos", "new_client", err)
		return nil
	}
	defer client.Close()
	items, err := client.Videos(rctx, ownerID, vidLimit)
	if err != nil {
		common.PrintRuntimeErr(ctx, "videos", "list", err)
		return nil
	}
	if len(items) == 0 {
		fmt.Println("vodkeep: no videos found")
		return nil
	}
	fmt.Println(formatItems(items, time.Now()))
	return nil
}

func formatItems(items []*model.Item, now time.Time) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%-12s %-14s %-9s %s\n",
			it.ID,
			humanize.RelTime(it.CreatedAt, now, "ago", "from now"),
			it.Duration,
			common.Truncate(it.Title, 60),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}
