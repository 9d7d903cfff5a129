// Package websocket carries replication channels over gorilla/websocket.
// Every binary frame is one message: a channel byte followed by the
// payload. The first server frame is a handshake naming the player id.
package websocket

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/replication/internal/queue"
	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// Server accepts client connections as an http.Handler.
type Server struct {
	mu       sync.Mutex
	upgrader ws.Upgrader
	conns    map[core.PlayerID]*conn
	events   *queue.Queue[transport.ConnectionEvent]
	next     core.PlayerID
	closed   bool
	logger   *slog.Logger
}

var _ transport.Server = (*Server)(nil)
var _ http.Handler = (*Server)(nil)

// NewServer returns a server with no connections.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		upgrader: ws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(map[core.PlayerID]*conn),
		events: queue.New[transport.ConnectionEvent](),
		logger: logger,
	}
}

func clientChannel(ch protocol.Channel) bool {
	return ch == protocol.ChannelCommand || ch == protocol.ChannelInput
}

// ServeHTTP upgrades the request and registers the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.Close()
		return
	}
	s.next++
	id := s.next
	s.mu.Unlock()

	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteMessage(ws.BinaryMessage, handshake(id)); err != nil {
		s.logger.Warn("Handshake failed", "player", id, "error", err)
		_ = c.Close()
		return
	}

	logger := s.logger.With("player", uint64(id))
	pc := newConn(c, logger, clientChannel, func(err error) { s.remove(id, err) })

	s.mu.Lock()
	s.conns[id] = pc
	s.events.Push(transport.ConnectionEvent{Player: id, Type: transport.Connected})
	s.mu.Unlock()

	logger.Info("Client connected", "remote", r.RemoteAddr)
	pc.start()
}

// remove runs once per connection from conn.close.
func (s *Server) remove(id core.PlayerID, err error) {
	s.mu.Lock()
	_, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.logger.Info("Client disconnected", "player", uint64(id), "error", err)
	s.events.Push(transport.ConnectionEvent{Player: id, Type: transport.Disconnected, Reason: err})
}

func (s *Server) conn(id core.PlayerID) (*conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	return c, ok
}

// Events implements transport.Server.
func (s *Server) Events() []transport.ConnectionEvent {
	return s.events.Drain()
}

// Receive implements transport.Server.
func (s *Server) Receive(player core.PlayerID, ch protocol.Channel) [][]byte {
	c, ok := s.conn(player)
	if !ok {
		return nil
	}
	return c.inbox.Drain(ch)
}

// Send implements transport.Server.
func (s *Server) Send(player core.PlayerID, ch protocol.Channel, payload []byte) error {
	c, ok := s.conn(player)
	if !ok {
		return transport.ErrNotConnected
	}
	return c.send(ch, payload)
}

// Broadcast implements transport.Server.
func (s *Server) Broadcast(ch protocol.Channel, payload []byte) {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.send(ch, payload)
	}
}

// Disconnect implements transport.Server.
func (s *Server) Disconnect(player core.PlayerID) {
	if c, ok := s.conn(player); ok {
		c.close(transport.ErrKicked)
	}
}

// Connected returns the number of open connections.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client and rejects new ones.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(nil)
	}
	return nil
}
