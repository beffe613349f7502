package server

import (
	"net/http"
	"time"

	"github.com/warpdl/vodkeep/pkg/logger"
)

// Endpoint paths.
const (
	PathRPC       = "/jsonrpc"
	PathWebSocket = "/jsonrpc/ws"
)

// Handler returns the authenticated HTTP routes: POST /jsonrpc for
// request/response calls and GET /jsonrpc/ws for a session that also
// receives pushed notifications.
func (rs *RPCServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+PathRPC, requireToken(rs.secret, rs.bridge))
	mux.Handle("GET "+PathWebSocket, requireToken(rs.secret, http.HandlerFunc(rs.serveWS)))
	return mux
}

// NewHTTPServer wraps the handler in an http.Server with the daemon's
// timeouts and error log.
func NewHTTPServer(h http.Handler, l logger.Logger) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.ToStdLogger(l),
	}
}
