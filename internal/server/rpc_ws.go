package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
	// writeTimeout bounds each Send; zero means no deadline. A timed out
	// write closes the connection.
	writeTimeout time.Duration
}

// Send writes one JSON-RPC message as a text frame.
func (c *wsChannel) Send(data []byte) error {
	ctx := c.ctx
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return c.conn.Write(ctx, cws.MessageText, data)
}

// Recv reads one JSON-RPC message.
func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

// Close shuts down the connection with a normal closure status.
func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// serveWS upgrades the request and runs a push-enabled jrpc2 server over
// it until the peer disconnects. The server is registered with the
// notifier for its lifetime.
func (rs *RPCServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		rs.log.Warning("websocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(1 << 20)

	ch := &wsChannel{conn: conn, ctx: r.Context(), writeTimeout: rs.notifier.timeout}
	srv := jrpc2.NewServer(rs.methods, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(ch)
	rs.notifier.Register(srv)
	defer rs.notifier.Unregister(srv)

	if err := srv.Wait(); err != nil && !isClosedErr(err) {
		rs.log.Warning("websocket session ended: %v", err)
	}
}

func isClosedErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch cws.CloseStatus(err) {
	case cws.StatusNormalClosure, cws.StatusGoingAway:
		return true
	}
	return false
}
