package websocket

import (
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// conn owns one websocket. A single write goroutine drains the reliable
// and unreliable send queues; a single read goroutine fills the inbox.
type conn struct {
	ws     *ws.Conn
	inbox  *transport.Inbox
	logger *slog.Logger

	reliable   chan []byte
	unreliable chan []byte
	done       chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error

	// accepts filters inbound channels by direction
	accepts func(protocol.Channel) bool
	// onClose runs once after the connection is torn down
	onClose func(err error)
}

func newConn(c *ws.Conn, logger *slog.Logger, accepts func(protocol.Channel) bool, onClose func(error)) *conn {
	rel, unrel := 0, 0
	for _, cfg := range protocol.Channels() {
		if cfg.Reliability == protocol.ReliableOrdered {
			rel += cfg.MaxQueued
		} else {
			unrel += cfg.MaxQueued
		}
	}
	return &conn{
		ws:         c,
		inbox:      transport.NewInbox(),
		logger:     logger,
		reliable:   make(chan []byte, rel),
		unreliable: make(chan []byte, unrel),
		done:       make(chan struct{}),
		accepts:    accepts,
		onClose:    onClose,
	}
}

func (c *conn) start() {
	go c.writeLoop()
	go c.readLoop()
}

// send queues payload on ch. Unreliable overflow drops the payload;
// reliable overflow closes the connection.
func (c *conn) send(ch protocol.Channel, payload []byte) error {
	select {
	case <-c.done:
		return c.Err()
	default:
	}

	f := frame(ch, payload)
	if !ch.Reliable() {
		select {
		case c.unreliable <- f:
		default:
			c.logger.Debug("Unreliable send queue full, dropping", "channel", ch.String())
		}
		return nil
	}
	select {
	case c.reliable <- f:
		return nil
	default:
		c.logger.Warn("Reliable send queue full, closing connection", "channel", ch.String())
		c.close(transport.ErrBackpressure)
		return transport.ErrBackpressure
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var data []byte
		// reliable traffic first so structural events are never starved by
		// snapshots
		select {
		case data = <-c.reliable:
		default:
			select {
			case <-c.done:
				return
			case data = <-c.reliable:
			case data = <-c.unreliable:
			case <-ticker.C:
				if err := c.ws.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					c.close(err)
					return
				}
				continue
			}
		}

		if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.close(err)
			return
		}
		if err := c.ws.WriteMessage(ws.BinaryMessage, data); err != nil {
			c.close(err)
			return
		}
	}
}

func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				err = nil
			}
			c.close(err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != ws.BinaryMessage {
			c.logger.Debug("Ignoring non-binary frame", "type", kind)
			continue
		}
		ch, payload, err := unframe(msg)
		if err != nil {
			c.logger.Warn("Dropping frame", "error", err, "size", len(msg))
			continue
		}
		if !c.accepts(ch) {
			c.logger.Warn("Dropping frame on wrong-direction channel", "channel", ch.String())
			continue
		}
		if !c.inbox.Push(ch, payload) {
			c.logger.Debug("Inbound queue full, dropping", "channel", ch.String())
		}
	}
}

// close tears the connection down once. A nil err is a clean close.
func (c *conn) close(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		if err == nil {
			c.err = transport.ErrClosed
		} else {
			c.err = err
		}
		c.mu.Unlock()
		close(c.done)

		_ = c.ws.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.ws.Close()

		if c.onClose != nil {
			c.onClose(err)
		}
	})
}

// Err returns why the connection ended, or nil while it is open.
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
