// Package loopback is an in-process transport. Reliable channels deliver
// in order; unreliable channels can be configured to lose, duplicate and
// reorder payloads so tests can exercise the lossy paths deterministically.
package loopback

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// Options configures unreliable-channel impairment. Probabilities are in
// [0,1]; zero disables the impairment.
type Options struct {
	Loss      float64
	Duplicate float64
	Reorder   float64
	Seed      int64
}

// Hub is the server end and the factory for client ends.
type Hub struct {
	mu     sync.Mutex
	opts   Options
	rng    *rand.Rand
	next   core.PlayerID
	events []transport.ConnectionEvent
	links  map[core.PlayerID]*link
	closed bool
}

type link struct {
	id       core.PlayerID
	toServer *transport.Inbox
	toClient *transport.Inbox
	// held payloads waiting to be delivered after the next one, per
	// direction and channel
	heldServer map[protocol.Channel][]byte
	heldClient map[protocol.Channel][]byte
	open       bool
	err        error
}

// NewHub returns an empty hub.
func NewHub(opts Options) *Hub {
	return &Hub{
		opts:  opts,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		links: make(map[core.PlayerID]*link),
	}
}

var _ transport.Server = (*Hub)(nil)

// Connect opens a new client connection. Player ids start at 1 and are
// never reused by a hub.
func (h *Hub) Connect() *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	l := &link{
		id:         h.next,
		toServer:   transport.NewInbox(),
		toClient:   transport.NewInbox(),
		heldServer: make(map[protocol.Channel][]byte),
		heldClient: make(map[protocol.Channel][]byte),
		open:       !h.closed,
	}
	if h.closed {
		l.err = transport.ErrClosed
		return &Client{hub: h, link: l}
	}
	h.links[l.id] = l
	h.events = append(h.events, transport.ConnectionEvent{Player: l.id, Type: transport.Connected})
	return &Client{hub: h, link: l}
}

// Events implements transport.Server.
func (h *Hub) Events() []transport.ConnectionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev := h.events
	h.events = nil
	return ev
}

// Receive implements transport.Server.
func (h *Hub) Receive(player core.PlayerID, ch protocol.Channel) [][]byte {
	h.mu.Lock()
	l, ok := h.links[player]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return l.toServer.Drain(ch)
}

// Send implements transport.Server.
func (h *Hub) Send(player core.PlayerID, ch protocol.Channel, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transport.ErrClosed
	}
	l, ok := h.links[player]
	if !ok {
		return transport.ErrNotConnected
	}
	h.deliver(l.toClient, l.heldClient, ch, payload)
	return nil
}

// Broadcast implements transport.Server.
func (h *Hub) Broadcast(ch protocol.Channel, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.links {
		h.deliver(l.toClient, l.heldClient, ch, payload)
	}
}

// Disconnect implements transport.Server.
func (h *Hub) Disconnect(player core.PlayerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.links[player]; ok {
		h.drop(l, transport.ErrKicked)
	}
}

// Fail simulates a transport error on player's connection.
func (h *Hub) Fail(player core.PlayerID, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.links[player]; ok {
		h.drop(l, err)
	}
}

// Close disconnects everyone.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.links {
		h.drop(l, transport.ErrClosed)
	}
	h.closed = true
	return nil
}

// Connected returns the number of open connections.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.links)
}

// drop must be called with h.mu held. Pending payloads are discarded.
func (h *Hub) drop(l *link, reason error) {
	if !l.open {
		return
	}
	l.open = false
	l.err = reason
	l.toServer.Clear()
	delete(h.links, l.id)
	var ev error
	if reason != nil && !errors.Is(reason, transport.ErrClosed) {
		ev = reason
	}
	h.events = append(h.events, transport.ConnectionEvent{Player: l.id, Type: transport.Disconnected, Reason: ev})
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(in *transport.Inbox, held map[protocol.Channel][]byte, ch protocol.Channel, payload []byte) {
	b := make([]byte, len(payload))
	copy(b, payload)

	if ch.Reliable() {
		in.Push(ch, b)
		return
	}
	if h.chance(h.opts.Loss) {
		return
	}
	if prev, ok := held[ch]; ok {
		delete(held, ch)
		in.Push(ch, b)
		in.Push(ch, prev)
		return
	}
	if h.chance(h.opts.Reorder) {
		held[ch] = b
		return
	}
	in.Push(ch, b)
	if h.chance(h.opts.Duplicate) {
		in.Push(ch, b)
	}
}

func (h *Hub) chance(p float64) bool {
	return p > 0 && h.rng.Float64() < p
}

// Client is one client end of a hub.
type Client struct {
	hub  *Hub
	link *link
}

var _ transport.Client = (*Client)(nil)

// ID implements transport.Client.
func (c *Client) ID() core.PlayerID { return c.link.id }

// Receive implements transport.Client. Payloads queued before a disconnect
// remain readable.
func (c *Client) Receive(ch protocol.Channel) [][]byte {
	return c.link.toClient.Drain(ch)
}

// Send implements transport.Client.
func (c *Client) Send(ch protocol.Channel, payload []byte) error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if !c.link.open {
		return c.errLocked()
	}
	c.hub.deliver(c.link.toServer, c.link.heldServer, ch, payload)
	return nil
}

// Close implements transport.Client.
func (c *Client) Close() error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.hub.drop(c.link, nil)
	return nil
}

// Err implements transport.Client.
func (c *Client) Err() error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if c.link.open {
		return nil
	}
	return c.errLocked()
}

func (c *Client) errLocked() error {
	if c.link.err == nil {
		return transport.ErrClosed
	}
	return c.link.err
}
