package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/warpdl/vodkeep/internal/api"
	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/server"
	"github.com/warpdl/vodkeep/internal/store"
	"github.com/warpdl/vodkeep/internal/supervisor"
	"github.com/warpdl/vodkeep/internal/twitch"
	"github.com/warpdl/vodkeep/pkg/vodcli"
)

// captureOutput captures stdout and stderr during function execution.
func captureOutput(f func()) (stdout, stderr string) {
	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	outC := make(chan string)
	errC := make(chan string)
	go func() {
		var b bytes.Buffer
		io.Copy(&b, rOut)
		outC <- b.String()
	}()
	go func() {
		var b bytes.Buffer
		io.Copy(&b, rErr)
		errC <- b.String()
	}()

	f()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	stdout, stderr = <-outC, <-errC
	rOut.Close()
	rErr.Close()
	return stdout, stderr
}

// assertContains checks if output contains the expected substring.
func assertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// assertNotContains checks if output does NOT contain the specified substring.
func assertNotContains(t *testing.T, output, notExpected string) {
	t.Helper()
	if strings.Contains(output, notExpected) {
		t.Errorf("expected output to NOT contain %q, got:\n%s", notExpected, output)
	}
}

// assertErrorFormat checks that error output follows the standard format:
// vodkeep: cmd[action]: msg
func assertErrorFormat(t *testing.T, output, cmd, action string) {
	t.Helper()
	pattern := "vodkeep: " + cmd + "[" + action + "]:"
	if !strings.Contains(output, pattern) {
		t.Errorf("expected error format %q, got:\n%s", pattern, output)
	}
}

const testSecret = "cmd-test-secret"

var testItem = &model.Item{
	ID:        "v100",
	OwnerID:   "42",
	OwnerName: "Streamer",
	Title:     "Marathon stream",
	URL:       "https://www.twitch.tv/videos/v100",
	CreatedAt: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
	Duration:  "3h2m1s",
}

type testSource struct{}

func (testSource) SearchChannels(_ context.Context, q string) ([]model.Owner, error) {
	if q != "streamer" {
		return nil, nil
	}
	return []model.Owner{{ID: "42", Login: "streamer", DisplayName: "Streamer", IsLive: true}}, nil
}

func (testSource) GetUser(_ context.Context, id string) (*model.Owner, error) {
	if id != "42" {
		return nil, twitch.ErrOwnerNotFound
	}
	return &model.Owner{ID: "42", Login: "streamer", DisplayName: "Streamer"}, nil
}

func (testSource) ListRecentItems(_ context.Context, ownerID string, _ int) ([]*model.Item, error) {
	if ownerID != "42" {
		return nil, nil
	}
	return []*model.Item{testItem}, nil
}

func (testSource) GetItem(_ context.Context, id string) (*model.Item, error) {
	if id != testItem.ID {
		return nil, twitch.ErrItemNotFound
	}
	return testItem, nil
}

// doneHandle finishes as soon as it is waited on.
type doneHandle struct{}

func (doneHandle) Wait() error      { return nil }
func (doneHandle) Terminate() error { return nil }

// instantRunner reports full progress and completes immediately.
type instantRunner struct{}

func (instantRunner) Run(_ context.Context, _ supervisor.Request, fn supervisor.ProgressFunc) (queue.Handle, error) {
	fn(supervisor.Progress{Percent: 100, Downloaded: 8 << 20, Total: 8 << 20})
	return doneHandle{}, nil
}

type testDownloader struct{}

func (testDownloader) Binary() string                          { return "yt-dlp" }
func (testDownloader) Version(context.Context) (string, error) { return "2024.03.10", nil }

type memSecrets struct{ v string }

func (m *memSecrets) Get() (string, string, error) {
	if m.v == "" {
		return "", "", os.ErrNotExist
	}
	return m.v, "keyring", nil
}

func (m *memSecrets) Set(v string) error {
	m.v = v
	return nil
}

// testDaemon is an in-process daemon the CLI commands talk to.
type testDaemon struct {
	api     *api.Api
	store   *store.Store
	secrets *memSecrets
	url     string
}

// newTestDaemon starts an RPC server backed by a real store and points
// newClient at it for the rest of the test.
func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "vodkeep.db"))
	if err != nil {
		t.Fatal(err)
	}
	secrets := &memSecrets{}
	a, err := api.New(context.Background(), api.Options{
		Store:      st,
		Runner:     instantRunner{},
		Downloader: testDownloader{},
		Secrets:    secrets,
		Source:     testSource{},
		Defaults:   model.Settings{DownloadPath: "/downloads", MaxConcurrentDownloads: 1},
		Fs:         afero.NewMemMapFs(),
	})
	if err != nil {
		t.Fatal(err)
	}
	rs := server.NewRPCServer(&server.RPCConfig{Secret: testSecret, Version: "1.0.0-test"}, a, nil)
	srv := httptest.NewServer(rs.Handler())
	d := &testDaemon{
		api:     a,
		store:   st,
		secrets: secrets,
		url:     "ws://" + strings.TrimPrefix(srv.URL, "http://") + server.PathWebSocket,
	}

	oldClient := newClient
	newClient = func(ctx context.Context) (*vodcli.Client, error) {
		return vodcli.Dial(ctx, d.url, testSecret)
	}
	t.Cleanup(func() {
		newClient = oldClient
		srv.Close()
		rs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(ctx)
		st.Close()
	})
	return d
}

// waitForStatus polls until task id reaches want.
func (d *testDaemon) waitForStatus(t *testing.T, id string, want model.Status) *model.DownloadTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := d.api.GetDownload(context.Background(), id)
		if err == nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach %s", id, want)
	return nil
}

// run executes the CLI with args and returns its stdout.
func run(t *testing.T, args ...string) string {
	t.Helper()
	var err error
	out, _ := captureOutput(func() {
		err = Execute(append([]string{"vodkeep"}, args...), BuildArgs{Version: "1.0.0-test", BuildType: "test"})
	})
	if err != nil {
		t.Fatalf("Execute(%v): %v", args, err)
	}
	return out
}
