package cmd

import "time"

const (
	// rpcTimeout bounds a single CLI request to the daemon.
	rpcTimeout = 30 * time.Second
	// shutdownTimeout bounds the daemon's graceful stop.
	shutdownTimeout = 15 * time.Second
)

const DESCRIPTION = `
vodkeep keeps local copies of Twitch VODs. A background daemon
watches the channels you schedule, queues every new VOD and hands
it to yt-dlp, while this command line talks to the daemon.
`

const (
	DaemonDescription = `The daemon command runs the backup daemon in the foreground.
It serves the JSON-RPC endpoint used by every other command,
runs scheduled jobs and executes the download queue.

Example:
        vodkeep daemon

`
	DownloadDescription = `The download command queues a single VOD by its id. The
download starts as soon as a queue slot is free.

Example:
        vodkeep download 2034567890
                    OR
        vodkeep download -q 720p60 2034567890

`
	InfoDescription = `The info command shows everything known about a download.

Example:
        vodkeep info <task id>

`
	CancelDescription = `The cancel command stops a running download or withdraws a
queued one. Finished downloads are removed from history.

Example:
        vodkeep cancel <task id>

`
	RemoveDescription = `The remove command deletes a finished download from history.
The downloaded file is left untouched.

Example:
        vodkeep remove <task id>

`
	ListDescription = `The list command displays the downloads history along with
the task ids used by the other commands.

Example:
        vodkeep list
                    OR
        vodkeep list --failed

`
	FlushDescription = `The flush command deletes completed and failed downloads from
history. Queued and running downloads are kept.

Example:
        vodkeep flush
                    OR
        vodkeep flush --older-than 168h

`
	WatchDescription = `The watch command follows the progress of running downloads
until they finish or you press Ctrl+C.

Example:
        vodkeep watch
                    OR
        vodkeep watch <task id>

`
	QueueDescription = `The queue command shows and controls the download queue.

Example:
        vodkeep queue status
        vodkeep queue concurrency 3
        vodkeep queue pause

`
	JobDescription = `The job command manages scheduled jobs. A job checks a channel
on a cron schedule and queues its newest VOD unless it has
already been downloaded.

Example:
        vodkeep job add --owner 12826 --cron "0 */4 * * *"
        vodkeep job list

`
	SearchDescription = `The search command finds channels by name.

Example:
        vodkeep search shroud

`
	VideosDescription = `The videos command lists the most recent VODs of a channel.

Example:
        vodkeep videos 12826

`
	ConfigDescription = `The config command shows and changes the runtime settings
kept by the daemon.

Example:
        vodkeep config show
        vodkeep config set --max-concurrent 3
        vodkeep config secret

`
	CheckDescription = `The check command asks the daemon whether the downloader
binary can be run.

Example:
        vodkeep check

`
)
