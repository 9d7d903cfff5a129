// Package transport defines the boundary between the replication engines
// and the packet I/O that carries their messages.
//
// Implementations deliver inbound payloads from their own goroutines into
// per-channel queues. The tick loop drains those queues in one step, so it
// never observes a message arriving mid-mutation.
package transport

import (
	"errors"

	"github.com/OCAP2/replication/internal/queue"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

var (
	// ErrNotConnected is returned when sending to an unknown or departed player.
	ErrNotConnected = errors.New("player not connected")
	// ErrClosed is returned after the transport or connection has shut down.
	ErrClosed = errors.New("transport closed")
	// ErrBackpressure means a reliable channel overflowed its send queue.
	// The connection is torn down because the ordering guarantee can no
	// longer be kept.
	ErrBackpressure = errors.New("reliable send queue overflow")
	// ErrKicked is the disconnect reason when the server drops a player.
	ErrKicked = errors.New("disconnected by server")
)

// EventType is a connection state transition.
type EventType uint8

const (
	Connected EventType = iota + 1
	Disconnected
)

func (e EventType) String() string {
	switch e {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionEvent reports a player connecting or disconnecting.
type ConnectionEvent struct {
	Player core.PlayerID
	Type   EventType
	// Reason is set on Disconnected when the connection failed rather than
	// closing cleanly.
	Reason error
}

// Server is the server side of a transport.
type Server interface {
	// Events returns and clears the pending connection events in the order
	// they happened.
	Events() []ConnectionEvent
	// Receive returns and clears the pending payloads from player on ch.
	Receive(player core.PlayerID, ch protocol.Channel) [][]byte
	// Send queues payload for player on ch.
	Send(player core.PlayerID, ch protocol.Channel, payload []byte) error
	// Broadcast queues payload for every connected player.
	Broadcast(ch protocol.Channel, payload []byte)
	// Disconnect tears down the connection of player. A Disconnected event
	// follows.
	Disconnect(player core.PlayerID)
	Close() error
}

// Client is the client side of a transport.
type Client interface {
	// ID returns the player identity the server assigned to this connection.
	ID() core.PlayerID
	// Receive returns and clears the pending payloads on ch.
	Receive(ch protocol.Channel) [][]byte
	Send(ch protocol.Channel, payload []byte) error
	Close() error
	// Err returns the reason the connection ended, or nil while it is up.
	Err() error
}

// Inbox holds inbound payloads per channel. Reliable channels are unbounded,
// unreliable channels are capped at their configured depth and drop on
// overflow.
type Inbox struct {
	queues []*queue.Queue[[]byte]
}

// NewInbox returns an inbox for every configured channel.
func NewInbox() *Inbox {
	cfgs := protocol.Channels()
	in := &Inbox{queues: make([]*queue.Queue[[]byte], len(cfgs))}
	for _, c := range cfgs {
		if c.Reliability == protocol.ReliableOrdered {
			in.queues[c.Channel] = queue.New[[]byte]()
		} else {
			in.queues[c.Channel] = queue.NewBounded[[]byte](c.MaxQueued)
		}
	}
	return in
}

// Push queues payload on ch. It returns false if the payload was dropped.
func (in *Inbox) Push(ch protocol.Channel, payload []byte) bool {
	if !ch.Valid() {
		return false
	}
	return in.queues[ch].Push(payload)
}

// Drain returns every payload queued on ch.
func (in *Inbox) Drain(ch protocol.Channel) [][]byte {
	if !ch.Valid() {
		return nil
	}
	return in.queues[ch].Drain()
}

// Dropped returns the number of payloads dropped on ch.
func (in *Inbox) Dropped(ch protocol.Channel) uint64 {
	if !ch.Valid() {
		return 0
	}
	return in.queues[ch].Dropped()
}

// Clear discards everything queued.
func (in *Inbox) Clear() {
	for _, q := range in.queues {
		q.Clear()
	}
}
