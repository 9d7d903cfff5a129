// Package v1 contains the v1 export format for session journals.
package v1

// Export is the root JSON structure for v1 format
type Export struct {
	FormatVersion int          `json:"formatVersion"`
	SessionID     string       `json:"sessionId"`
	SessionName   string       `json:"sessionName"`
	StartedAt     string       `json:"startedAt"`
	EndedAt       string       `json:"endedAt,omitempty"`
	EndTick       uint64       `json:"endTick"`
	Settings      any          `json:"settings,omitempty"`
	Entities      []Entity     `json:"entities"`
	Projectiles   []Projectile `json:"projectiles"`
	Events        [][]any      `json:"events"`
	Performance   []Sample     `json:"performance"`
}

// Entity is one spawned player, item or projectile with its lifetime.
type Entity struct {
	ID            uint64     `json:"id"`
	Index         uint32     `json:"index"`
	Generation    uint32     `json:"generation"`
	Kind          string     `json:"kind"`
	Name          string     `json:"name,omitempty"`
	PlayerID      uint64     `json:"playerId,omitempty"`
	Position      [3]float32 `json:"position"`
	SpawnTick     uint64     `json:"spawnTick"`
	DespawnTick   uint64     `json:"despawnTick,omitempty"`
	DespawnReason string     `json:"despawnReason,omitempty"`
}

// Projectile is one cast with its sampled flight path. Trajectory rows are
// [x, y, z, tick].
type Projectile struct {
	ID         uint64       `json:"id"`
	CasterID   uint64       `json:"casterId"`
	CastAt     [3]float32   `json:"castAt"`
	Velocity   [3]float32   `json:"velocity"`
	Reason     string       `json:"reason"`
	Trajectory [][4]float64 `json:"trajectory"`
}

// Sample is one periodic status reading.
type Sample struct {
	Tick        uint64  `json:"tick"`
	Time        string  `json:"time"`
	Connections int     `json:"connections"`
	Bots        int     `json:"bots"`
	Players     int     `json:"players"`
	Projectiles int     `json:"projectiles"`
	Items       int     `json:"items"`
	TickMs      float64 `json:"tickMs"`
}
