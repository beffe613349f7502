package cmd

import (
	"context"
	"os"

	"github.com/warpdl/vodkeep/internal/config"
	"github.com/warpdl/vodkeep/pkg/vodcli"
)

// loadConfig reads the configuration from the default directory.
var loadConfig = func() (*config.Config, error) {
	dir, err := config.DefaultDir()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

// newClient connects to the running daemon with the locally stored RPC
// secret and warns when the daemon runs a different version.
var newClient = func(ctx context.Context) (*vodcli.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	secret, err := cfg.ReadRPCSecret()
	if err != nil {
		return nil, err
	}
	client, err := vodcli.Dial(ctx, cfg.Listen, secret)
	if err != nil {
		return nil, err
	}
	client.CheckVersionMismatch(ctx, currentBuildArgs.Version, os.Stderr)
	return client, nil
}

func rpcContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rpcTimeout)
}
