package cmd

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli"
	"github.com/warpdl/vodkeep/cmd/common"
	"github.com/warpdl/vodkeep/pkg/logger"
)

const daemonLogFile = "daemon.log"

// daemonLogger logs every level to daemon.log in dir and messages at or
// above consoleMin to stderr. The returned closer releases the log file.
func daemonLogger(dir string, consoleMin logger.Level) (logger.Logger, io.Closer, error) {
	console := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return console, io.NopCloser(nil), err
	}
	f, err := os.OpenFile(filepath.Join(dir, daemonLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return console, io.NopCloser(nil), err
	}
	file := logger.NewStandardLogger(log.New(f, "", log.LstdFlags))
	return logger.NewMultiLogger(
		logger.Sink{Logger: console, Min: consoleMin},
		logger.Sink{Logger: file, Min: logger.LevelInfo},
	), f, nil
}

func daemon(ctx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "load_config", err)
		return nil
	}
	l, closer, err := daemonLogger(cfg.Dir, cfg.LogLevel)
	if err != nil {
		l.Warning("Logging to console only: %v", err)
	}
	defer closer.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := initDaemonComponents(sigCtx, cfg, l)
	if err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "init", err)
		return nil
	}
	defer comps.Close()

	if err := comps.Run(sigCtx); err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "run", err)
	}
	return nil
}
