package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
)

var (
	flushOlderThan time.Duration

	flsFlags = []cli.Flag{
		cli.DurationFlag{
			Name:        "older-than, o",
			Usage:       "only flush downloads created before this long ago, e.g. 168h (default: all)",
			Destination: &flushOlderThan,
		},
	}
)

func flush(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	if flushOlderThan < 0 {
		return common.PrintErrWithCmdHelp(ctx, fmt.Errorf("older-than must not be negative"))
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "flush", "new_client", err)
		return nil
	}
	defer client.Close()
	var olderThan string
	if flushOlderThan > 0 {
		olderThan = flushOlderThan.String()
	}
	n, err := client.Flush(rctx, olderThan)
	if err != nil {
		common.PrintRuntimeErr(ctx, "flush", "flush", err)
		return nil
	}
	fmt.Printf("Flushed %d download(s) from history\n", n)
	return nil
}
