package vodcli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/server"
)

const secret = "cli-secret"

// fakeDaemon serves a few methods over WebSocket and pushes one progress
// event after download.add.
func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+secret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := cws.Accept(w, r, nil)
		if err != nil {
			return
		}
		ch := &wsChannel{conn: conn, ctx: r.Context()}
		var rpc *jrpc2.Server
		methods := handler.Map{
			"system.getVersion": handler.New(func(context.Context) (*server.VersionResult, error) {
				return &server.VersionResult{Version: "2.0.0"}, nil
			}),
			"download.add": handler.New(func(ctx context.Context, p *server.AddParams) (*server.AddResult, error) {
				go rpc.Notify(context.Background(), server.MethodProgress, queue.Event{
					TaskID: "t-" + p.ItemID, Status: model.StatusDownloading, Percent: 50,
				})
				return &server.AddResult{TaskID: "t-" + p.ItemID}, nil
			}),
			"download.list": handler.New(func(ctx context.Context, p *server.ListParams) (*server.ListResult, error) {
				out := []*model.DownloadTask{}
				for _, st := range p.Status {
					out = append(out, &model.DownloadTask{ID: "x", Status: st})
				}
				return &server.ListResult{Downloads: out}, nil
			}),
		}
		rpc = jrpc2.NewServer(methods, &jrpc2.ServerOptions{AllowPush: true})
		rpc.Start(ch)
		rpc.Wait()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsAddr(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestURL(t *testing.T) {
	if got := URL("127.0.0.1:3850"); got != "ws://127.0.0.1:3850/jsonrpc/ws" {
		t.Fatalf("URL = %q", got)
	}
	if got := URL("ws://host:1/x"); got != "ws://host:1/x" {
		t.Fatalf("URL kept full urls? %q", got)
	}
}

func TestDial_Unauthorized(t *testing.T) {
	srv := fakeDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, wsAddr(srv.URL), "wrong")
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestClient_CallsAndProgress(t *testing.T) {
	srv := fakeDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, wsAddr(srv.URL), secret)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	events := make(chan queue.Event, 1)
	c.OnProgress(func(ev queue.Event) { events <- ev })

	v, err := c.GetDaemonVersion(ctx)
	if err != nil || v.Version != "2.0.0" {
		t.Fatalf("GetDaemonVersion = %+v, %v", v, err)
	}
	id, err := c.Download(ctx, "v1", model.Quality720p)
	if err != nil || id != "t-v1" {
		t.Fatalf("Download = %q, %v", id, err)
	}
	select {
	case ev := <-events:
		if ev.TaskID != "t-v1" || ev.Percent != 50 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no progress event")
	}

	tasks, err := c.List(ctx, model.StatusFailed)
	if err != nil || len(tasks) != 1 || tasks[0].Status != model.StatusFailed {
		t.Fatalf("List = %v, %v", tasks, err)
	}
	if _, err := c.QueueStatus(ctx); err == nil {
		t.Fatal("expected method-not-found error")
	}
}

func TestCheckVersionMismatch(t *testing.T) {
	srv := fakeDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsAddr(srv.URL), secret)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var buf bytes.Buffer
	c.CheckVersionMismatch(ctx, "2.0.0", &buf)
	if buf.Len() != 0 {
		t.Fatalf("unexpected warning %q", buf.String())
	}
	c.CheckVersionMismatch(ctx, "1.0.0", &buf)
	if !strings.Contains(buf.String(), "differs from daemon version (2.0.0)") {
		t.Fatalf("missing warning, got %q", buf.String())
	}
	buf.Reset()
	t.Setenv(VersionCheckEnv, "1")
	c.CheckVersionMismatch(ctx, "1.0.0", &buf)
	if buf.Len() != 0 {
		t.Fatal("warning not suppressed")
	}
}
