package server

import (
	"time"

	"github.com/OCAP2/replication/pkg/core"
)

// ItemSpec places an equippable item in the world at startup.
type ItemSpec struct {
	Name     string
	Model    string
	Position core.Vec3
}

// Config holds the gameplay and replication constants of the engine.
type Config struct {
	// SyncInterval is the snapshot broadcast period.
	SyncInterval time.Duration
	SpawnPoint   core.Vec3
	MoveSpeed    float32

	ProjectileSpeed    float32
	ProjectileLifetime time.Duration
	// CastOffset is how far in front of the caster a projectile appears.
	CastOffset float32
	// CastHeight is the fixed height projectiles fly at.
	CastHeight float32

	InteractRadius float32
	Items          []ItemSpec

	BotCastInterval time.Duration
	// BotSpread is the side of the square bots spawn in, centred on the origin.
	BotSpread     float32
	BotHeight     float32
	BotRingSize   int
	BotRingOffset float32
}

// DefaultConfig returns the standard arena rules.
func DefaultConfig() Config {
	return Config{
		SyncInterval:       100 * time.Millisecond,
		SpawnPoint:         core.Vec3{X: 0, Y: 2, Z: 0},
		MoveSpeed:          5,
		ProjectileSpeed:    10,
		ProjectileLifetime: 1500 * time.Millisecond,
		CastOffset:         0.7,
		CastHeight:         1.0,
		InteractRadius:     2.0,
		BotCastInterval:    3 * time.Second,
		BotSpread:          40,
		BotHeight:          0.51,
		BotRingSize:        8,
		BotRingOffset:      1,
	}
}
