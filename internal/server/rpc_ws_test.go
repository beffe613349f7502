package server

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/warpdl/vodkeep/internal/queue"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + PathWebSocket
}

func TestWebSocketEndpoint_AuthRequired(t *testing.T) {
	_, srv := newTestRPCServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, header := range []http.Header{nil, {"Authorization": []string{"Bearer wrong-token"}}} {
		_, resp, err := cws.Dial(ctx, wsURL(srv.URL), &cws.DialOptions{HTTPHeader: header})
		if err == nil {
			t.Fatal("expected error for unauthorized WebSocket connection")
		}
		if resp != nil && resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	}
}

// dialClient connects a jrpc2 client over the WebSocket endpoint.
func dialClient(t *testing.T, ctx context.Context, url string, onNotify func(*jrpc2.Request)) *jrpc2.Client {
	t.Helper()
	conn, _, err := cws.Dial(ctx, url, &cws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + testSecret}},
	})
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	cli := jrpc2.NewClient(&wsChannel{conn: conn, ctx: ctx}, &jrpc2.ClientOptions{OnNotify: onNotify})
	t.Cleanup(func() { cli.Close() })
	return cli
}

func TestWebSocketEndpoint_Call(t *testing.T) {
	_, srv := newTestRPCServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cli := dialClient(t, ctx, wsURL(srv.URL), nil)
	var res VersionResult
	if err := cli.CallResult(ctx, "system.getVersion", nil, &res); err != nil {
		t.Fatalf("CallResult: %v", err)
	}
	if res.Version != "1.0.0-test" {
		t.Fatalf("unexpected version %+v", res)
	}
}

func TestWebSocketEndpoint_NotifierRegistration(t *testing.T) {
	rs, srv := newTestRPCServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if rs.Notifier().Count() != 0 {
		t.Fatalf("expected 0 sessions before connecting, got %d", rs.Notifier().Count())
	}
	cli := dialClient(t, ctx, wsURL(srv.URL), nil)
	waitCount(t, rs.Notifier(), 1)

	cli.Close()
	waitCount(t, rs.Notifier(), 0)
}

func TestWebSocketEndpoint_ProgressPush(t *testing.T) {
	rs, srv := newTestRPCServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan queue.Event, 64)
	cli := dialClient(t, ctx, wsURL(srv.URL), func(req *jrpc2.Request) {
		if req.Method() != MethodProgress {
			return
		}
		var ev queue.Event
		if err := req.UnmarshalParams(&ev); err == nil {
			events <- ev
		}
	})
	waitCount(t, rs.Notifier(), 1)

	var add AddResult
	if err := cli.CallResult(ctx, "download.add", AddParams{ItemID: "v100"}, &add); err != nil {
		t.Fatalf("download.add: %v", err)
	}
	for {
		select {
		case ev := <-events:
			if ev.TaskID == add.TaskID && ev.Percent == 12.5 && ev.Total == 8<<20 {
				return
			}
		case <-ctx.Done():
			t.Fatal("no progress notification received")
		}
	}
}

func waitCount(t *testing.T, n *RPCNotifier, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for n.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d registered sessions, got %d", want, n.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketEndpoint_StalledClientDoesNotBlockBroadcast(t *testing.T) {
	rs, srv := newTestRPCServerConfig(t, &RPCConfig{
		Secret:      testSecret,
		Version:     "1.0.0-test",
		PushTimeout: 200 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// A peer that never reads.
	conn, _, err := cws.Dial(ctx, wsURL(srv.URL), &cws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + testSecret}},
	})
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.CloseNow()
	waitCount(t, rs.Notifier(), 1)

	pad := strings.Repeat("x", 32<<10)
	start := time.Now()
	for i := 0; i < 1000; i++ {
		rs.Notifier().Broadcast(MethodProgress, queue.Event{TaskID: "t1", Percent: float64(i % 100), Error: pad})
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("Broadcast stalled for %v on a peer that does not read", d)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rs.Notifier().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stalled session was never dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
