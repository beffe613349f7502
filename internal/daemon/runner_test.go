package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "ok")
})

func testConfig() *Config {
	return &Config{Listen: "127.0.0.1:0"}
}

// startRunner runs Start in the background and waits until it listens.
func startRunner(t *testing.T, r *Runner, ctx context.Context) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Start(ctx)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !r.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("runner did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return errCh
}

func TestNew_Defaults(t *testing.T) {
	r := New(nil, nil, nil)
	if r.Config().Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", r.Config().Listen, DefaultListen)
	}
	if r.Addr() != nil {
		t.Error("Addr() should be nil before Start")
	}
}

func TestRunner_Start_ServesHandler(t *testing.T) {
	var listenerCreated atomic.Bool
	r := New(testConfig(), okHandler, &Dependencies{
		ListenerFactory: func(network, address string) (net.Listener, error) {
			listenerCreated.Store(true)
			return net.Listen(network, address)
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startRunner(t, r, ctx)

	if !listenerCreated.Load() {
		t.Error("Start() did not use the listener factory")
	}
	resp, err := http.Get("http://" + r.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Start() = %v after cancel", err)
	}
	if r.IsRunning() {
		t.Error("runner still running after cancel")
	}
}

func TestRunner_Start_ListenerError(t *testing.T) {
	wantErr := errors.New("address in use")
	r := New(testConfig(), okHandler, &Dependencies{
		ListenerFactory: func(string, string) (net.Listener, error) { return nil, wantErr },
	})
	if err := r.Start(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Start() = %v, want %v", err, wantErr)
	}
	if r.IsRunning() {
		t.Error("runner must not be running after a failed bind")
	}
}

func TestRunner_Start_ReturnsErrorIfAlreadyRunning(t *testing.T) {
	r := New(testConfig(), okHandler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startRunner(t, r, ctx)

	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunner_Shutdown(t *testing.T) {
	var shutdownCalled atomic.Bool
	r := New(testConfig(), okHandler, &Dependencies{
		ShutdownFunc: func() error {
			shutdownCalled.Store(true)
			return nil
		},
	})
	errCh := startRunner(t, r, context.Background())

	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !shutdownCalled.Load() {
		t.Error("Shutdown() did not call shutdown function")
	}
	if r.IsRunning() {
		t.Error("Shutdown() did not stop the runner")
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start() = %v", err)
	}
}

func TestRunner_Shutdown_WithTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownTimeout = 100 * time.Millisecond
	r := New(cfg, okHandler, &Dependencies{
		ShutdownFunc: func() error {
			time.Sleep(500 * time.Millisecond)
			return nil
		},
	})
	startRunner(t, r, context.Background())

	if err := r.Shutdown(); !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("Shutdown() error = %v, want ErrShutdownTimeout", err)
	}
}

func TestRunner_Shutdown_NotRunning(t *testing.T) {
	r := New(testConfig(), okHandler, nil)
	if err := r.Shutdown(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Shutdown() error = %v, want ErrNotRunning", err)
	}
}

func TestRunner_ShutdownFuncError(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownTimeout = time.Second
	expectedErr := errors.New("shutdown error")
	r := New(cfg, okHandler, &Dependencies{
		ShutdownFunc: func() error { return expectedErr },
	})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := startRunner(t, r, ctx)

	cancel()
	if err := <-errCh; !errors.Is(err, expectedErr) {
		t.Errorf("Start() error = %v, want %v", err, expectedErr)
	}
}
