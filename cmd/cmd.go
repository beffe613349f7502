package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

// currentBuildArgs is set by Execute so the daemon can report its version
// and clients can detect a mismatch.
var currentBuildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "vodkeep",
		HelpName:              "vodkeep",
		Usage:                 "Back up Twitch VODs on a schedule.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "vodkeep <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:               "daemon",
				Usage:              "runs the backup daemon in the foreground",
				Action:             daemon,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        DaemonDescription,
			},
			{
				Name:                   "download",
				Aliases:                []string{"d"},
				Usage:                  "queue a VOD for download",
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 download,
				Flags:                  dlFlags,
				UseShortOptionHandling: true,
				Description:            DownloadDescription,
			},
			{
				Name:               "info",
				Aliases:            []string{"i"},
				Usage:              "shows a single download",
				Action:             info,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        InfoDescription,
			},
			{
				Name:               "cancel",
				Usage:              "cancel a queued or running download",
				Action:             cancel,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        CancelDescription,
			},
			{
				Name:               "remove",
				Aliases:            []string{"rm"},
				Usage:              "remove a finished download from history",
				Action:             remove,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        RemoveDescription,
			},
			{
				Name:                   "list",
				Aliases:                []string{"l"},
				Usage:                  "display downloads history",
				Action:                 list,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				Description:            ListDescription,
				UseShortOptionHandling: true,
				Flags:                  lsFlags,
			},
			{
				Name:               "flush",
				Aliases:            []string{"c"},
				Usage:              "flush finished downloads from history",
				Description:        FlushDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             flush,
				Flags:              flsFlags,
			},
			{
				Name:               "watch",
				Aliases:            []string{"w"},
				Usage:              "follow download progress",
				Description:        WatchDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             watch,
			},
			{
				Name:        "queue",
				Aliases:     []string{"q"},
				Usage:       "inspect and control the download queue",
				Description: QueueDescription,
				Subcommands: queueCommands,
			},
			{
				Name:        "job",
				Aliases:     []string{"j"},
				Usage:       "manage scheduled backup jobs",
				Description: JobDescription,
				Subcommands: jobCommands,
			},
			{
				Name:               "search",
				Aliases:            []string{"s"},
				Usage:              "search channels by name",
				Action:             search,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        SearchDescription,
			},
			{
				Name:               "videos",
				Usage:              "list recent VODs of a channel",
				Action:             videos,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        VideosDescription,
				Flags:              vidFlags,
			},
			{
				Name:        "config",
				Usage:       "show or change runtime settings",
				Description: ConfigDescription,
				Subcommands: configCommands,
			},
			{
				Name:               "check",
				Usage:              "checks that the downloader is installed",
				Action:             check,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        CheckDescription,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of vodkeep",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
