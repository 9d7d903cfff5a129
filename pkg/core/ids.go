// pkg/core/ids.go
package core

import "fmt"

// PlayerID is the logical player identity assigned by the transport at
// connect time. It is stable for the lifetime of a session.
type PlayerID uint64

// EntityID is a server-side entity handle. The low 32 bits hold the arena
// slot index and the high 32 bits the slot generation, so a handle to a
// despawned entity never aliases a later occupant of the same slot.
//
// EntityID values are only meaningful inside the server process. Clients
// carry them as opaque keys into their mapping table.
type EntityID uint64

// NewEntityID packs an arena index and generation into a handle.
func NewEntityID(index, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

// Index returns the arena slot.
func (e EntityID) Index() uint32 { return uint32(e) }

// Generation returns the slot generation.
func (e EntityID) Generation() uint32 { return uint32(e >> 32) }

// IsZero reports whether e is the zero handle. The arena never hands out
// generation 0, so the zero handle is never live.
func (e EntityID) IsZero() bool { return e == 0 }

func (e EntityID) String() string {
	return fmt.Sprintf("%dv%d", e.Index(), e.Generation())
}

// LocalID is a client-side entity handle, valid only in the client process
// that allocated it.
type LocalID uint64

func (l LocalID) String() string {
	return fmt.Sprintf("L%d", uint64(l))
}
