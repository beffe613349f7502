package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/warpdl/vodkeep/internal/api"
	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/store"
	"github.com/warpdl/vodkeep/internal/supervisor"
	"github.com/warpdl/vodkeep/internal/twitch"
)

const testSecret = "rpc-test-secret-42"

type stubSource struct{}

var stubItem = &model.Item{
	ID:        "v100",
	OwnerID:   "42",
	OwnerName: "Streamer",
	Title:     "Marathon",
	URL:       "https://www.twitch.tv/videos/v100",
	CreatedAt: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
}

func (stubSource) SearchChannels(_ context.Context, q string) ([]model.Owner, error) {
	if len(q) < 2 {
		return nil, nil
	}
	return []model.Owner{{ID: "42", Login: "streamer", DisplayName: "Streamer", IsLive: true}}, nil
}

func (stubSource) GetUser(_ context.Context, id string) (*model.Owner, error) {
	if id != "42" {
		return nil, twitch.ErrOwnerNotFound
	}
	return &model.Owner{ID: "42", Login: "streamer", DisplayName: "Streamer"}, nil
}

func (stubSource) ListRecentItems(_ context.Context, ownerID string, _ int) ([]*model.Item, error) {
	if ownerID != "42" {
		return nil, nil
	}
	return []*model.Item{stubItem}, nil
}

func (stubSource) GetItem(_ context.Context, id string) (*model.Item, error) {
	if id != stubItem.ID {
		return nil, twitch.ErrItemNotFound
	}
	return stubItem, nil
}

// blockingHandle runs until terminated.
type blockingHandle struct{ done chan error }

func (h *blockingHandle) Wait() error { return <-h.done }

func (h *blockingHandle) Terminate() error {
	select {
	case h.done <- errors.New("signal: terminated"):
	default:
	}
	return nil
}

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, _ supervisor.Request, fn supervisor.ProgressFunc) (queue.Handle, error) {
	fn(supervisor.Progress{Percent: 12.5, Downloaded: 1 << 20, Total: 8 << 20})
	return &blockingHandle{done: make(chan error, 1)}, nil
}

type stubDownloader struct{}

func (stubDownloader) Binary() string                          { return "yt-dlp" }
func (stubDownloader) Version(context.Context) (string, error) { return "2024.03.10", nil }

// newTestRPCServer starts an httptest server in front of an RPCServer
// backed by a real store and stubbed platform and downloader.
func newTestRPCServer(t *testing.T) (*RPCServer, *httptest.Server) {
	t.Helper()
	return newTestRPCServerConfig(t, &RPCConfig{Secret: testSecret, Version: "1.0.0-test", Commit: "abc123"})
}

func newTestRPCServerConfig(t *testing.T, cfg *RPCConfig) (*RPCServer, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "vodkeep.db"))
	if err != nil {
		t.Fatal(err)
	}
	a, err := api.New(context.Background(), api.Options{
		Store:      st,
		Runner:     stubRunner{},
		Downloader: stubDownloader{},
		Source:     stubSource{},
		Defaults:   model.Settings{DownloadPath: "/downloads", MaxConcurrentDownloads: 1},
		Fs:         afero.NewMemMapFs(),
	})
	if err != nil {
		t.Fatal(err)
	}
	rs := NewRPCServer(cfg, a, nil)
	srv := httptest.NewServer(rs.Handler())
	t.Cleanup(func() {
		srv.Close()
		rs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(ctx)
		st.Close()
	})
	return rs, srv
}

// rpcPost sends a JSON-RPC request via HTTP POST with auth and returns the
// decoded response.
func rpcPost(t *testing.T, serverURL, method string, params any) (int, map[string]any) {
	t.Helper()
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		reqBody["params"] = params
	}
	data, _ := json.Marshal(reqBody)
	req, _ := http.NewRequest(http.MethodPost, serverURL+PathRPC, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var result map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("unmarshal: %v (body: %s)", err, string(body))
		}
	}
	return resp.StatusCode, result
}

// rpcResult returns the result object of a successful call.
func rpcResult(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	if e, ok := resp["error"]; ok {
		t.Fatalf("unexpected error: %v", e)
	}
	res, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %v", resp["result"])
	}
	return res
}

// rpcErrorCode returns the error code of a failed call.
func rpcErrorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error, got %v", resp)
	}
	return int(e["code"].(float64))
}
