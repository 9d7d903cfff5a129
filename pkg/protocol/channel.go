package protocol

import "fmt"

// Channel identifies a logical stream multiplexed over one connection.
type Channel uint8

const (
	// ChannelEvents carries structural world changes server to client.
	ChannelEvents Channel = iota
	// ChannelSnapshot carries periodic transform batches server to client.
	ChannelSnapshot
	// ChannelCommand carries discrete client commands.
	ChannelCommand
	// ChannelInput carries continuous, supersedable client input.
	ChannelInput
)

// Reliability is the delivery contract of a channel.
type Reliability uint8

const (
	// ReliableOrdered delivers every message once, in send order.
	ReliableOrdered Reliability = iota
	// Unreliable may lose, duplicate or reorder messages.
	Unreliable
)

func (r Reliability) String() string {
	switch r {
	case ReliableOrdered:
		return "reliable-ordered"
	case Unreliable:
		return "unreliable"
	default:
		return fmt.Sprintf("reliability(%d)", uint8(r))
	}
}

// ChannelConfig describes one channel.
type ChannelConfig struct {
	Channel     Channel
	Name        string
	Reliability Reliability
	// MaxQueued bounds the per-connection send queue. Overflowing an
	// unreliable channel drops the message, overflowing a reliable one
	// tears down the connection.
	MaxQueued int
}

var channels = [...]ChannelConfig{
	{Channel: ChannelEvents, Name: "events", Reliability: ReliableOrdered, MaxQueued: 4096},
	{Channel: ChannelSnapshot, Name: "snapshot", Reliability: Unreliable, MaxQueued: 8},
	{Channel: ChannelCommand, Name: "command", Reliability: ReliableOrdered, MaxQueued: 256},
	{Channel: ChannelInput, Name: "input", Reliability: Unreliable, MaxQueued: 64},
}

// Channels returns the channel table.
func Channels() []ChannelConfig {
	out := make([]ChannelConfig, len(channels))
	copy(out, channels[:])
	return out
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool { return int(c) < len(channels) }

// Config returns the channel's configuration. Unknown channels report an
// unreliable zero-capacity config.
func (c Channel) Config() ChannelConfig {
	if !c.Valid() {
		return ChannelConfig{Channel: c, Name: c.String(), Reliability: Unreliable}
	}
	return channels[c]
}

// Reliable reports whether the channel guarantees ordered exactly-once delivery.
func (c Channel) Reliable() bool { return c.Config().Reliability == ReliableOrdered }

func (c Channel) String() string {
	if c.Valid() {
		return channels[c].Name
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}
