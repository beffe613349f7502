package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/warpdl/vodkeep/internal/api"
	"github.com/warpdl/vodkeep/internal/config"
	daemonpkg "github.com/warpdl/vodkeep/internal/daemon"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/server"
	"github.com/warpdl/vodkeep/internal/store"
	"github.com/warpdl/vodkeep/internal/supervisor"
	"github.com/warpdl/vodkeep/pkg/credman/keyring"
	"github.com/warpdl/vodkeep/pkg/logger"
)

// DaemonComponents holds all initialized daemon components so they can be
// started together and released in reverse order of initialization.
type DaemonComponents struct {
	Config *config.Config
	Store  *store.Store
	Api    *api.Api
	RPC    *server.RPCServer
	Runner *daemonpkg.Runner
	logger logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Run serves RPC and runs the scheduler until ctx is cancelled or either
// fails. Stopping the runner releases every component.
func (c *DaemonComponents) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Runner.Start(gctx)
	})
	g.Go(func() error {
		return c.Api.Start(gctx)
	})
	return g.Wait()
}

// Close stops the queue and scheduler, then the RPC bridge, then the
// store. Safe to call more than once.
func (c *DaemonComponents) Close() error {
	c.closeOnce.Do(func() {
		log := logger.OrNop(c.logger)
		log.Info("Shutting down daemon...")
		var errs []error
		if c.Api != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			errs = append(errs, c.Api.Close(ctx))
			cancel()
		}
		if c.RPC != nil {
			c.RPC.Close()
		}
		if c.Store != nil {
			errs = append(errs, c.Store.Close())
		}
		c.closeErr = errors.Join(errs...)
		log.Info("Daemon stopped")
	})
	return c.closeErr
}

// initDaemonComponents initializes all daemon components for cfg. On error,
// any partially initialized components are cleaned up before returning.
var initDaemonComponents = func(ctx context.Context, cfg *config.Config, log logger.Logger) (*DaemonComponents, error) {
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	secret, err := cfg.EnsureRPCSecret()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		log.Error("Database initialization failed: %v", err)
		return nil, err
	}

	sup := supervisor.New(supervisor.Options{
		Binary: cfg.Downloader,
		Logger: log,
	})
	a, err := api.New(ctx, api.Options{
		Store:       st,
		Runner:      queue.SupervisorRunner(sup),
		Downloader:  sup,
		Secrets:     keyring.New(cfg.Dir, log),
		Defaults:    cfg.DefaultSettings(),
		RecentLimit: cfg.RecentLimit,
		Logger:      log,
	})
	if err != nil {
		log.Error("API initialization failed: %v", err)
		st.Close()
		return nil, err
	}

	rs := server.NewRPCServer(&server.RPCConfig{
		Secret:    secret,
		Version:   currentBuildArgs.Version,
		Commit:    currentBuildArgs.Commit,
		BuildType: currentBuildArgs.BuildType,
	}, a, log)

	c := &DaemonComponents{
		Config: cfg,
		Store:  st,
		Api:    a,
		RPC:    rs,
		logger: log,
	}
	c.Runner = daemonpkg.New(&daemonpkg.Config{
		Listen:          cfg.Listen,
		ShutdownTimeout: shutdownTimeout,
	}, rs.Handler(), &daemonpkg.Dependencies{
		ShutdownFunc: c.Close,
		Logger:       log,
	})
	return c, nil
}
