package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

const handshakeWait = 10 * time.Second

// Client is a connection to a Server.
type Client struct {
	id core.PlayerID
	c  *conn
}

var _ transport.Client = (*Client)(nil)

// Dial connects to url and waits for the handshake.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	deadline := time.Now().Add(handshakeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.SetReadDeadline(deadline)
	_, msg, err := c.ReadMessage()
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	id, err := parseHandshake(msg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	serverChannel := func(ch protocol.Channel) bool {
		return ch == protocol.ChannelEvents || ch == protocol.ChannelSnapshot
	}
	cl := &Client{
		id: id,
		c:  newConn(c, logger.With("player", uint64(id)), serverChannel, nil),
	}
	cl.c.start()
	return cl, nil
}

// ID implements transport.Client.
func (c *Client) ID() core.PlayerID { return c.id }

// Receive implements transport.Client.
func (c *Client) Receive(ch protocol.Channel) [][]byte { return c.c.inbox.Drain(ch) }

// Send implements transport.Client.
func (c *Client) Send(ch protocol.Channel, payload []byte) error { return c.c.send(ch, payload) }

// Close implements transport.Client.
func (c *Client) Close() error {
	c.c.close(nil)
	return nil
}

// Err implements transport.Client.
func (c *Client) Err() error { return c.c.Err() }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.c.done }
