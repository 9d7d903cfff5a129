// Package model holds the GORM rows of the session journal.
package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// DatabaseModels is every table of the journal schema, in migration order.
// Geometry columns are stored as WKB so the same schema serves SQLite and
// Postgres.
var DatabaseModels = []any{
	&Session{},
	&Connection{},
	&Spawn{},
	&Despawn{},
	&Projectile{},
	&Equip{},
	&TickPerformance{},
}

// Session is one server run.
type Session struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	UUID      string         `json:"uuid" gorm:"size:36;uniqueIndex"`
	Name      string         `json:"name" gorm:"size:127"`
	StartedAt time.Time      `json:"startedAt" gorm:"index:idx_session_started_at"`
	EndedAt   sql.NullTime   `json:"endedAt"`
	Settings  datatypes.JSON `json:"settings"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Connection is a player joining or leaving.
type Connection struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_connection_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time `json:"time"`
	Tick      uint64    `json:"tick"`
	PlayerID  uint64    `json:"playerId" gorm:"index:idx_connection_player_id"`
	Connected bool      `json:"connected"`
	Bot       bool      `json:"bot"`
}

func (*Connection) TableName() string {
	return "connections"
}

// Spawn is an authoritative entity being created.
type Spawn struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_spawn_session_id"`
	Session   Session    `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time  `json:"time"`
	Tick      uint64     `json:"tick"`
	EntityID  uint64     `json:"entityId" gorm:"index:idx_spawn_entity_id"`
	Kind      string     `json:"kind" gorm:"size:16"`
	PlayerID  uint64     `json:"playerId"`
	Position  geom.Point `json:"position"`
	Name      string     `json:"name" gorm:"size:64"`
}

func (*Spawn) TableName() string {
	return "spawns"
}

// Despawn is an authoritative entity being destroyed.
type Despawn struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_despawn_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time `json:"time"`
	Tick      uint64    `json:"tick"`
	EntityID  uint64    `json:"entityId" gorm:"index:idx_despawn_entity_id"`
	Kind      string    `json:"kind" gorm:"size:16"`
	Reason    string    `json:"reason" gorm:"size:32"`
}

func (*Despawn) TableName() string {
	return "despawns"
}

// Projectile is one cast from spawn to despawn.
type Projectile struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_projectile_session_id"`
	Session   Session    `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time  `json:"firedTime"`
	EntityID  uint64     `json:"entityId"`
	CasterID  uint64     `json:"casterId" gorm:"index:idx_projectile_caster_id"`
	CastAt    geom.Point `json:"castAt"`
	Velocity  geom.Point `json:"velocity"`
	Reason    string     `json:"reason" gorm:"size:32"`

	Trajectory geom.Geometry `json:"-"` // LineStringZM of sampled positions [x,y,z,tick]
}

func (*Projectile) TableName() string {
	return "projectiles"
}

// Equip is an item changing hands.
type Equip struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_equip_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time      time.Time `json:"time"`
	Tick      uint64    `json:"tick"`
	PlayerID  uint64    `json:"playerId"`
	ItemID    uint64    `json:"itemId"`
	ItemName  string    `json:"itemName" gorm:"size:64"`
	Equipped  bool      `json:"equipped"`
	Forced    bool      `json:"forced"`
}

func (*Equip) TableName() string {
	return "equips"
}

// TickPerformance is one sample of the engine status.
type TickPerformance struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID   uint      `json:"sessionId" gorm:"index:idx_tickperformance_session_id"`
	Session     Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time        time.Time `json:"time" gorm:"index:idx_tickperformance_time"`
	Tick        uint64    `json:"tick"`
	Connections int       `json:"connections"`
	Bots        int       `json:"bots"`
	Players     int       `json:"players"`
	Projectiles int       `json:"projectiles"`
	Items       int       `json:"items"`
	TickMs      float32   `json:"tickMs"`
}

func (*TickPerformance) TableName() string {
	return "tick_performances"
}
