// Package vodcli is the client for the vodkeep daemon's JSON-RPC
// WebSocket endpoint.
package vodcli

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/server"
)

// ProgressHandler receives pushed download events.
type ProgressHandler func(queue.Event)

// Client is a connected daemon session.
type Client struct {
	rpc  *jrpc2.Client
	conn *cws.Conn

	mu       sync.RWMutex
	handlers []ProgressHandler
}

// wsChannel adapts a WebSocket connection to the jrpc2 Channel interface.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// URL returns the WebSocket endpoint for a daemon listening on addr
// ("host:port" or a full ws:// URL).
func URL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + server.PathWebSocket
}

// Dial connects to the daemon at addr, authenticating with secret.
func Dial(ctx context.Context, addr, secret string) (*Client, error) {
	conn, resp, err := cws.Dial(ctx, URL(addr), &cws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + secret}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("error connecting to daemon: unauthorized (check rpc_secret)")
		}
		return nil, fmt.Errorf("error connecting to daemon at %s: %w", addr, err)
	}
	conn.SetReadLimit(1 << 20)

	c := &Client{conn: conn}
	// The session outlives the dial context.
	ch := &wsChannel{conn: conn, ctx: context.Background()}
	c.rpc = jrpc2.NewClient(ch, &jrpc2.ClientOptions{OnNotify: c.onNotify})
	return c, nil
}

func (c *Client) onNotify(req *jrpc2.Request) {
	if req.Method() != server.MethodProgress {
		return
	}
	var ev queue.Event
	if err := req.UnmarshalParams(&ev); err != nil {
		return
	}
	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// OnProgress registers a handler for pushed download events.
func (c *Client) OnProgress(h ProgressHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Close ends the session.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func invoke[T any](ctx context.Context, c *Client, method string, params any) (*T, error) {
	var res T
	if err := c.rpc.CallResult(ctx, method, params, &res); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return &res, nil
}
