// Package streaming defines the JSON envelope protocol used to forward a
// session journal to a remote collector over WebSocket.
package streaming

import (
	"encoding/json"

	"github.com/OCAP2/replication/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeConnection   = "connection"
	TypeSpawn        = "spawn"
	TypeDespawn      = "despawn"
	TypeProjectile   = "projectile"
	TypeEquip        = "equip"
	TypePerformance  = "performance"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the collector's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session being journaled.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}
