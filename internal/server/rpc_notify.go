package server

import (
	"context"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"

	"github.com/warpdl/vodkeep/pkg/logger"
)

// MethodProgress is the notification pushed for every queue event. Its
// params are a queue.Event.
const MethodProgress = "download.progress"

// sessionBacklog is how many notifications may wait for one slow session
// before it is dropped.
const sessionBacklog = 256

// DefaultPushTimeout bounds a single write to a WebSocket session.
const DefaultPushTimeout = 5 * time.Second

type notification struct {
	method string
	params any
}

// pushSession feeds one jrpc2 server from its own backlog so a peer that
// stops reading only ever stalls itself.
type pushSession struct {
	srv     *jrpc2.Server
	backlog chan notification
	stop    chan struct{}
	once    sync.Once
}

func (s *pushSession) close() {
	s.once.Do(func() { close(s.stop) })
}

// RPCNotifier keeps the set of connected WebSocket sessions and pushes
// notifications to all of them. Broadcast never blocks on a session.
type RPCNotifier struct {
	mu       sync.RWMutex
	sessions map[*jrpc2.Server]*pushSession
	log      logger.Logger
	timeout  time.Duration
}

// NewRPCNotifier creates an empty notifier.
func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	return &RPCNotifier{
		sessions: make(map[*jrpc2.Server]*pushSession),
		log:      logger.OrNop(l),
		timeout:  DefaultPushTimeout,
	}
}

// Register adds a session to the broadcast set and starts its sender.
func (n *RPCNotifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.sessions[srv]; ok {
		return
	}
	s := &pushSession{
		srv:     srv,
		backlog: make(chan notification, sessionBacklog),
		stop:    make(chan struct{}),
	}
	n.sessions[srv] = s
	go n.send(s)
}

// Unregister removes a session from the broadcast set.
func (n *RPCNotifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	s, ok := n.sessions[srv]
	delete(n.sessions, srv)
	n.mu.Unlock()
	if ok {
		s.close()
	}
}

// drop unregisters s and disconnects its peer.
func (n *RPCNotifier) drop(s *pushSession) {
	n.mu.Lock()
	if n.sessions[s.srv] == s {
		delete(n.sessions, s.srv)
	}
	n.mu.Unlock()
	s.close()
	// Stop closes the WebSocket, which may wait for the close handshake.
	go s.srv.Stop()
}

func (n *RPCNotifier) send(s *pushSession) {
	for {
		select {
		case <-s.stop:
			return
		case note := <-s.backlog:
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			err := s.srv.Notify(ctx, note.method, note.params)
			cancel()
			if err != nil {
				n.log.Warning("RPC push failed: %v", err)
				n.drop(s)
				return
			}
		}
	}
}

// Broadcast queues a notification for every session. A session whose
// backlog is full is dropped.
func (n *RPCNotifier) Broadcast(method string, params any) {
	note := notification{method: method, params: params}
	n.mu.RLock()
	var full []*pushSession
	for _, s := range n.sessions {
		select {
		case s.backlog <- note:
		default:
			full = append(full, s)
		}
	}
	n.mu.RUnlock()

	for _, s := range full {
		n.log.Warning("RPC push: session fell %d notifications behind, disconnecting", sessionBacklog)
		n.drop(s)
	}
}

// Count returns the number of registered sessions.
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sessions)
}
