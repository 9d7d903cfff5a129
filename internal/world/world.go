// Package world is the server's authoritative entity store: a generational
// arena of players, projectiles and items.
package world

import (
	"time"

	"github.com/OCAP2/replication/pkg/core"
)

// Kind classifies an entity.
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindProjectile
	KindItem
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindProjectile:
		return "projectile"
	case KindItem:
		return "item"
	default:
		return "unknown"
	}
}

// Reason says why an entity was despawned.
type Reason string

const (
	ReasonExpired      Reason = "expired"
	ReasonDisconnected Reason = "disconnected"
	ReasonRemoved      Reason = "removed"
)

// Input is the held movement keys of a player.
type Input struct {
	Up    bool
	Down  bool
	Left  bool
	Right bool
}

// Axes returns x = right-left and z = down-up.
func (in Input) Axes() (x, z float32) {
	if in.Right {
		x++
	}
	if in.Left {
		x--
	}
	if in.Down {
		z++
	}
	if in.Up {
		z--
	}
	return x, z
}

// Entity is one authoritative object. Fields outside the entity's kind are
// zero.
type Entity struct {
	ID        core.EntityID
	Kind      Kind
	Transform core.Transform
	Velocity  core.Vec3

	// Player and Projectile: the owning player.
	Player core.PlayerID

	// Player
	Input Input
	Held  core.EntityID
	Bot   bool
	// BotCooldown counts down to a bot's next autocast.
	BotCooldown time.Duration

	// Projectile
	Lifetime time.Duration

	// Item
	Name   string
	Model  string
	Holder core.EntityID
}

// Removal is the record left behind by Despawn.
type Removal struct {
	Entity Entity
	Reason Reason
}

type slot struct {
	gen   uint32
	alive bool
	e     Entity
}

// World is not safe for concurrent use; the server tick loop owns it.
type World struct {
	slots    []slot
	free     []uint32
	removals []Removal
	live     [KindItem + 1]int
}

// New returns an empty world.
func New() *World {
	return &World{}
}

// Spawn stores e and returns its new handle.
func (w *World) Spawn(e Entity) core.EntityID {
	var idx uint32
	if n := len(w.free); n > 0 {
		idx = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		idx = uint32(len(w.slots))
		w.slots = append(w.slots, slot{})
	}
	s := &w.slots[idx]
	s.gen++
	s.alive = true
	e.ID = core.NewEntityID(idx, s.gen)
	s.e = e
	w.live[e.Kind]++
	return e.ID
}

// Get returns the live entity behind id. Handles to despawned entities
// report false even if the slot has been reused.
func (w *World) Get(id core.EntityID) (*Entity, bool) {
	idx := id.Index()
	if int(idx) >= len(w.slots) {
		return nil, false
	}
	s := &w.slots[idx]
	if !s.alive || s.gen != id.Generation() {
		return nil, false
	}
	return &s.e, true
}

// Despawn removes id and records a Removal. Despawning a dead handle is a
// no-op.
func (w *World) Despawn(id core.EntityID, reason Reason) bool {
	e, ok := w.Get(id)
	if !ok {
		return false
	}
	w.removals = append(w.removals, Removal{Entity: *e, Reason: reason})
	w.live[e.Kind]--
	s := &w.slots[id.Index()]
	s.alive = false
	s.e = Entity{}
	w.free = append(w.free, id.Index())
	return true
}

// DrainRemovals returns the removals recorded since the last call, oldest
// first.
func (w *World) DrainRemovals() []Removal {
	r := w.removals
	w.removals = nil
	return r
}

// Each calls fn for every live entity of kind in slot order. fn may
// despawn entities.
func (w *World) Each(kind Kind, fn func(e *Entity)) {
	for i := range w.slots {
		s := &w.slots[i]
		if s.alive && s.e.Kind == kind {
			fn(&s.e)
		}
	}
}

// Count returns the number of live entities of kind.
func (w *World) Count(kind Kind) int {
	if int(kind) >= len(w.live) {
		return 0
	}
	return w.live[kind]
}

// Len returns the number of live entities.
func (w *World) Len() int {
	n := 0
	for _, c := range w.live {
		n += c
	}
	return n
}
