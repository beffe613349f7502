package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/internal/api"
	"github.com/warpdl/vodkeep/pkg/vodcli"
)

var queueCommands = []cli.Command{
	{
		Name:         "status",
		Usage:        "show queued and running downloads",
		Action:       queueStatus,
		OnUsageError: common.UsageErrorCallback,
	},
	{
		Name:         "concurrency",
		Usage:        "set how many downloads may run at once",
		UsageText:    "<limit>",
		Action:       queueConcurrency,
		OnUsageError: common.UsageErrorCallback,
	},
	{
		Name:         "pause",
		Usage:        "stop starting new downloads",
		Action:       queuePause,
		OnUsageError: common.UsageErrorCallback,
	},
	{
		Name:         "resume",
		Usage:        "start queued downloads again",
		Action:       queueResume,
		OnUsageError: common.UsageErrorCallback,
	},
}

func printQueueStatus(st *api.QueueStatus) {
	state := "running"
	if st.Paused {
		state = "paused"
	}
	fmt.Printf("Queue is %s: %d active of %d allowed, %d waiting\n",
		state, st.Active, st.MaxConcurrent, st.Queued)
}

// queueAction runs fn against a connected client and prints the resulting
// queue status.
func queueAction(ctx *cli.Context, action string, fn func(context.Context, *vodcli.Client) (*api.QueueStatus, error)) error {
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "queue", "new_client", err)
		return nil
	}
	defer client.Close()
	st, err := fn(rctx, client)
	if err != nil {
		common.PrintRuntimeErr(ctx, "queue", action, err)
		return nil
	}
	printQueueStatus(st)
	return nil
}

func queueStatus(ctx *cli.Context) error {
	return queueAction(ctx, "status", func(rctx context.Context, c *vodcli.Client) (*api.QueueStatus, error) {
		return c.QueueStatus(rctx)
	})
}

func queueConcurrency(ctx *cli.Context) error {
	arg := ctx.Args().First()
	if arg == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("limit is required"))
	}
	limit, err := strconv.Atoi(arg)
	if err != nil || limit < 1 {
		return common.PrintErrWithCmdHelp(ctx, fmt.Errorf("invalid limit %q: must be a whole number of at least 1", arg))
	}
	return queueAction(ctx, "set_concurrency", func(rctx context.Context, c *vodcli.Client) (*api.QueueStatus, error) {
		return c.SetConcurrency(rctx, limit)
	})
}

func queuePause(ctx *cli.Context) error {
	return queueAction(ctx, "pause", func(rctx context.Context, c *vodcli.Client) (*api.QueueStatus, error) {
		return c.PauseQueue(rctx)
	})
}

func queueResume(ctx *cli.Context) error {
	return queueAction(ctx, "resume", func(rctx context.Context, c *vodcli.Client) (*api.QueueStatus, error) {
		return c.ResumeQueue(rctx)
	})
}
