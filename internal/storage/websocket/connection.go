package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/replication/pkg/streaming"
)

const (
	ackChSize  = 16
	maxBackoff = 30 * time.Second
	writeWait  = 10 * time.Second
)

// connection owns one collector socket. A single writer goroutine drains
// sendCh; a reader goroutine routes acks. On error both exit and
// reconnect takes over.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{}
	closed bool

	cfg Config

	// replayed first after every reconnect
	startMsg []byte

	dropped uint64
	logger  *slog.Logger
}

func newConnection(cfg Config, logger *slog.Logger) *connection {
	return &connection{
		sendCh: make(chan []byte, cfg.SendBuffer),
		ackCh:  make(chan streaming.AckMessage, ackChSize),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: logger,
	}
}

func (c *connection) dial() error {
	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.start(conn)
	return nil
}

// dialOnce dials the collector, sending the secret as a bearer token.
func (c *connection) dialOnce() (*ws.Conn, error) {
	header := http.Header{}
	if c.cfg.Secret != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Secret)
	}
	conn, _, err := ws.DefaultDialer.Dial(c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) start(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.writeLoop(conn)
	go c.readLoop(conn)
}

func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("Collector write failed", "error", err)
				// the payload is lost; the session start is replayed
				go c.reconnect(conn)
				return
			}
		}
	}
}

func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("Collector read failed", "error", err)
				go c.reconnect(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Ignoring collector message", "raw", string(message))
			continue
		}
		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// reconnect replaces broken with a fresh socket using exponential backoff.
// Only the first caller for a given broken socket proceeds.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	_ = broken.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := c.cfg.Backoff
	for attempt := 1; attempt <= c.cfg.MaxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		replay := c.startMsg
		c.mu.Unlock()
		if replay != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(ws.TextMessage, replay); err != nil {
				c.logger.Warn("Session replay failed", "attempt", attempt, "error", err)
				_ = conn.Close()
				continue
			}
		}

		c.logger.Info("Collector reconnected", "attempt", attempt)
		c.start(conn)
		return
	}

	c.logger.Error("Giving up on collector", "attempts", c.cfg.MaxReconnect)
}

// send queues data without blocking; it drops when the buffer is full.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		return false
	}
}

// sendAndWait sends data and blocks until the collector acknowledges
// ackFor or the timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	if !c.send(data) {
		return fmt.Errorf("send buffer full for %q", ackFor)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

func (c *connection) droppedCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// close sends a close frame and stops all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return conn.Close()
}
