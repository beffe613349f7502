package cmd

import (
	"fmt"

	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/internal/api"
)

func check(ctx *cli.Context) error {
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "check", "new_client", err)
		return nil
	}
	defer client.Close()
	st, err := client.CheckDownloader(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "check", "check_downloader", err)
		return nil
	}
	fmt.Println(formatDownloaderStatus(st))
	return nil
}

func formatDownloaderStatus(st *api.DownloaderStatus) string {
	if !st.Installed {
		msg := fmt.Sprintf("%s is not available", st.Binary)
		if st.Error != "" {
			msg += ": " + st.Error
		}
		return msg + "\nInstall yt-dlp or set \"downloader\" in config.yaml."
	}
	return fmt.Sprintf("%s %s is installed", st.Binary, st.Version)
}
