package websocket

import (
	"encoding/binary"
	"fmt"

	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// handshakeTag marks the first server frame, which carries the player id
// assigned to the connection.
const handshakeTag = 0xFF

// frame prefixes payload with its channel byte.
func frame(ch protocol.Channel, payload []byte) []byte {
	b := make([]byte, 0, len(payload)+1)
	b = append(b, byte(ch))
	return append(b, payload...)
}

// unframe splits a binary message into channel and payload.
func unframe(b []byte) (protocol.Channel, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("empty frame")
	}
	ch := protocol.Channel(b[0])
	if !ch.Valid() {
		return 0, nil, fmt.Errorf("frame on unknown %s", ch)
	}
	return ch, b[1:], nil
}

func handshake(id core.PlayerID) []byte {
	b := make([]byte, 9)
	b[0] = handshakeTag
	binary.LittleEndian.PutUint64(b[1:], uint64(id))
	return b
}

func parseHandshake(b []byte) (core.PlayerID, error) {
	if len(b) != 9 || b[0] != handshakeTag {
		return 0, fmt.Errorf("invalid handshake frame of %d bytes", len(b))
	}
	return core.PlayerID(binary.LittleEndian.Uint64(b[1:])), nil
}
