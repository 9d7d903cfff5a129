// pkg/core/events.go
package core

import (
	"time"
)

// ConnectionEvent records a player joining or leaving a session.
type ConnectionEvent struct {
	Time      time.Time
	Tick      uint64
	PlayerID  PlayerID
	Connected bool
	Bot       bool
}

// SpawnEvent records an authoritative entity being created.
type SpawnEvent struct {
	Time     time.Time
	Tick     uint64
	Entity   EntityID
	Kind     string
	PlayerID PlayerID // owner, zero for world objects
	Position Vec3
	Name     string // item name, empty for players and projectiles
}

// DespawnEvent records an authoritative entity being destroyed.
type DespawnEvent struct {
	Time   time.Time
	Tick   uint64
	Entity EntityID
	Kind   string
	Reason string
}

// TrajectoryPoint is one sampled projectile position.
type TrajectoryPoint struct {
	Position Vec3
	Tick     uint64
}

// ProjectileEvent records a projectile from cast to despawn.
type ProjectileEvent struct {
	Time       time.Time
	Entity     EntityID
	Caster     PlayerID
	CastAt     Vec3
	Velocity   Vec3
	Trajectory []TrajectoryPoint
	Reason     string
}

// EquipEvent records an item changing hands.
type EquipEvent struct {
	Time     time.Time
	Tick     uint64
	PlayerID PlayerID
	Item     EntityID
	ItemName string
	Equipped bool
	Forced   bool // unequip caused by disconnect
}

// Session identifies one server run in the journal.
type Session struct {
	ID        string // uuid
	Name      string
	StartedAt time.Time
	Settings  map[string]any
}

// PerformanceSample is one periodic reading of the server status.
type PerformanceSample struct {
	Time         time.Time
	Tick         uint64
	Connections  int
	Bots         int
	Players      int
	Projectiles  int
	Items        int
	TickDuration time.Duration
}
