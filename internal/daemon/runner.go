// Package daemon runs the vodkeep HTTP endpoint: it owns the listener and
// http.Server lifecycle, including graceful shutdown with a timeout.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/warpdl/vodkeep/pkg/logger"
)

// Sentinel errors for the daemon runner.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running daemon.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned when Shutdown() is called on a stopped daemon.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrShutdownTimeout is returned when shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// DefaultListen is the address used when Config.Listen is empty.
const DefaultListen = "127.0.0.1:3850"

// Config holds the configuration for the daemon runner.
type Config struct {
	// Listen is the TCP address to serve on. Port 0 picks an ephemeral port.
	Listen string

	// ShutdownTimeout bounds the HTTP drain and the shutdown function.
	// A zero value means no timeout.
	ShutdownTimeout time.Duration
}

// Dependencies holds the external dependencies for the daemon runner.
type Dependencies struct {
	// ListenerFactory creates network listeners.
	// If nil, net.Listen is used.
	ListenerFactory func(network, address string) (net.Listener, error)

	// ShutdownFunc is called after the HTTP server stops to release the
	// service's resources. If nil, nothing is called.
	ShutdownFunc func() error

	Logger logger.Logger
}

// Runner manages the daemon lifecycle.
type Runner struct {
	config  *Config
	deps    *Dependencies
	handler http.Handler
	log     logger.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	listener net.Listener
	srv      *http.Server
	stopOnce sync.Once
	stopErr  error
}

// New creates a runner serving handler. Nil config and deps use defaults.
func New(config *Config, handler http.Handler, deps *Dependencies) *Runner {
	if config == nil {
		config = &Config{}
	}
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if deps == nil {
		deps = &Dependencies{}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	return &Runner{
		config:  config,
		deps:    deps,
		handler: handler,
		log:     logger.OrNop(deps.Logger),
	}
}

// Config returns the runner's configuration.
func (r *Runner) Config() *Config {
	return r.config
}

// Addr returns the listening address, or nil before Start.
func (r *Runner) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Start listens, serves until ctx is cancelled or Shutdown is called, then
// stops gracefully. It returns the shutdown error, or the serve error if
// the server failed on its own.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, r.cancel = context.WithCancel(ctx)

	// The listener is created before running is set so a failed bind
	// leaves the runner stopped.
	listener, err := r.deps.ListenerFactory("tcp", r.config.Listen)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.listener = listener
	r.srv = &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.ToStdLogger(r.log),
	}
	r.stopOnce = sync.Once{}
	r.stopErr = nil
	r.running = true
	srv := r.srv
	r.mu.Unlock()

	r.log.Info("Listening on %s", listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		return r.stop()
	case err := <-serveErr:
		stopErr := r.stop()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return stopErr
	}
}

// Shutdown stops a running daemon and waits for the shutdown function.
// Returns ErrNotRunning if the daemon is not running and ErrShutdownTimeout
// if stopping exceeds the configured timeout.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	cancel := r.cancel
	r.mu.Unlock()

	err := r.stop()
	cancel()
	return err
}

// stop drains the HTTP server, then runs the shutdown function. It runs
// once per Start; later callers get the first result.
func (r *Runner) stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		srv := r.srv
		r.mu.Unlock()

		err := r.executeWithTimeout(srv.Shutdown)
		if err != nil && !errors.Is(err, ErrShutdownTimeout) {
			r.log.Warning("http shutdown: %v", err)
		}
		if errors.Is(err, ErrShutdownTimeout) {
			_ = srv.Close()
			r.stopErr = err
		}
		if r.deps.ShutdownFunc != nil {
			if err := r.executeWithTimeout(func(context.Context) error { return r.deps.ShutdownFunc() }); err != nil {
				r.stopErr = err
			}
		}

		r.mu.Lock()
		r.running = false
		if r.listener != nil {
			_ = r.listener.Close()
			r.listener = nil
		}
		r.mu.Unlock()
	})
	return r.stopErr
}

// executeWithTimeout runs fn with the configured timeout. It returns
// ErrShutdownTimeout if fn does not finish in time, otherwise fn's error.
func (r *Runner) executeWithTimeout(fn func(context.Context) error) error {
	ctx := context.Background()
	if r.config.ShutdownTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.ShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrShutdownTimeout
		}
		return err
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

// IsRunning returns true if the daemon is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
