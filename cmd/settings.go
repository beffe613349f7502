package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/internal/api"
	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/pkg/credman/keyring"
)

var (
	secretLocal bool

	cfgSetFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "client-id",
			Usage: "Twitch application client id",
		},
		cli.StringFlag{
			Name:  "download-path",
			Usage: "directory downloads are written to",
		},
		cli.IntFlag{
			Name:  "max-concurrent",
			Usage: "how many downloads may run at once",
		},
		cli.StringFlag{
			Name:  "quality",
			Usage: "preferred quality for manual downloads",
		},
	}

	cfgSecretFlags = []cli.Flag{
		cli.BoolFlag{
			Name:        "local",
			Usage:       "store the secret directly, without a running daemon",
			Destination: &secretLocal,
		},
	}
)

// secretInput is where "config secret" reads the client secret from.
var secretInput io.Reader = os.Stdin

var configCommands = []cli.Command{
	{
		Name:   "show",
		Usage:  "print the runtime settings",
		Action: configShow,
	},
	{
		Name:               "set",
		Usage:              "change runtime settings",
		Action:             configSet,
		Flags:              cfgSetFlags,
		OnUsageError:       common.UsageErrorCallback,
		CustomHelpTemplate: CMD_HELP_TEMPL,
	},
	{
		Name:               "secret",
		Usage:              "store the Twitch client secret",
		Action:             configSecret,
		Flags:              cfgSecretFlags,
		OnUsageError:       common.UsageErrorCallback,
		CustomHelpTemplate: CMD_HELP_TEMPL,
	},
}

func configShow(ctx *cli.Context) error {
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "config", "new_client", err)
		return nil
	}
	defer client.Close()
	view, err := client.GetConfig(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "config", "get", err)
		return nil
	}
	fmt.Print(formatSettings(view))
	return nil
}

func formatSettings(v *api.SettingsView) string {
	clientID := v.ClientID
	if clientID == "" {
		clientID = "(not set)"
	}
	secret := "(not set)"
	if v.HasClientSecret {
		secret = "stored in " + v.ClientSecretSource
	}
	txt := fmt.Sprintf("Client ID:\t\t%s\n", clientID)
	txt += fmt.Sprintf("Client secret:\t\t%s\n", secret)
	txt += fmt.Sprintf("Download path:\t\t%s\n", v.DownloadPath)
	txt += fmt.Sprintf("Max concurrent:\t\t%d\n", v.MaxConcurrentDownloads)
	txt += fmt.Sprintf("Preferred quality:\t%s\n", v.PreferredQuality)
	return txt
}

// settingsPatch builds a patch from the flags the user actually set.
func settingsPatch(ctx *cli.Context) (api.SettingsPatch, error) {
	var p api.SettingsPatch
	if ctx.IsSet("client-id") {
		v := ctx.String("client-id")
		p.ClientID = &v
	}
	if ctx.IsSet("download-path") {
		v := ctx.String("download-path")
		if v == "" {
			return p, errors.New("download-path must not be empty")
		}
		p.DownloadPath = &v
	}
	if ctx.IsSet("max-concurrent") {
		v := ctx.Int("max-concurrent")
		if v < 1 {
			return p, errors.New("max-concurrent must be at least 1")
		}
		p.MaxConcurrentDownloads = &v
	}
	if ctx.IsSet("quality") {
		v := model.Quality(ctx.String("quality"))
		if err := v.Validate(); err != nil {
			return p, err
		}
		p.PreferredQuality = &v
	}
	if p == (api.SettingsPatch{}) {
		return p, errors.New("nothing to change: pass at least one flag")
	}
	return p, nil
}

func configSet(ctx *cli.Context) error {
	patch, err := settingsPatch(ctx)
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "config", "new_client", err)
		return nil
	}
	defer client.Close()
	view, err := client.UpdateConfig(rctx, patch)
	if err != nil {
		common.PrintRuntimeErr(ctx, "config", "update", err)
		return nil
	}
	fmt.Print(formatSettings(view))
	return nil
}

func readSecret(r io.Reader) (string, error) {
	fmt.Print("Client secret: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", errors.New("client secret must not be empty")
	}
	return secret, nil
}

func configSecret(ctx *cli.Context) error {
	secret, err := readSecret(secretInput)
	fmt.Println()
	if err != nil {
		common.PrintRuntimeErr(ctx, "config", "read_secret", err)
		return nil
	}
	if secretLocal {
		cfg, err := loadConfig()
		if err != nil {
			common.PrintRuntimeErr(ctx, "config", "load_config", err)
			return nil
		}
		if err := keyring.New(cfg.Dir, nil).Set(secret); err != nil {
			common.PrintRuntimeErr(ctx, "config", "store_secret", err)
			return nil
		}
		fmt.Println("Client secret stored; restart the daemon to use it")
		return nil
	}
	rctx, cancel := rpcContext()
	defer cancel()
	client, err := newClient(rctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "config", "new_client", err)
		return nil
	}
	defer client.Close()
	if _, err := client.UpdateConfig(rctx, api.SettingsPatch{ClientSecret: &secret}); err != nil {
		common.PrintRuntimeErr(ctx, "config", "update", err)
		return nil
	}
	fmt.Println("Client secret stored")
	return nil
}
