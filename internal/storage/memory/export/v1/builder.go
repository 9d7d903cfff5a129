package v1

import (
	"sort"
	"time"

	"github.com/OCAP2/replication/pkg/core"
)

// Event type tags used in Export.Events rows.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventEquipped     = "equipped"
	EventUnequipped   = "unequipped"
)

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session     *core.Session
	EndedAt     time.Time
	Entities    map[core.EntityID]*EntityRecord
	Connections []core.ConnectionEvent
	Equips      []core.EquipEvent
	Projectiles []core.ProjectileEvent
	Performance []core.PerformanceSample
}

// EntityRecord groups a spawn with its despawn, if one happened.
type EntityRecord struct {
	Spawn   core.SpawnEvent
	Despawn *core.DespawnEvent
}

// Build creates an Export from the session data
func Build(data *SessionData) Export {
	export := Export{
		FormatVersion: 1,
		Entities:      make([]Entity, 0, len(data.Entities)),
		Projectiles:   make([]Projectile, 0, len(data.Projectiles)),
		Events:        make([][]any, 0, len(data.Connections)+len(data.Equips)),
		Performance:   make([]Sample, 0, len(data.Performance)),
	}
	if s := data.Session; s != nil {
		export.SessionID = s.ID
		export.SessionName = s.Name
		export.StartedAt = formatTime(s.StartedAt)
		if len(s.Settings) > 0 {
			export.Settings = s.Settings
		}
	}
	export.EndedAt = formatTime(data.EndedAt)

	var endTick uint64
	seen := func(tick uint64) {
		if tick > endTick {
			endTick = tick
		}
	}

	for _, rec := range data.Entities {
		e := Entity{
			ID:         uint64(rec.Spawn.Entity),
			Index:      rec.Spawn.Entity.Index(),
			Generation: rec.Spawn.Entity.Generation(),
			Kind:       rec.Spawn.Kind,
			Name:       rec.Spawn.Name,
			PlayerID:   uint64(rec.Spawn.PlayerID),
			Position:   vec(rec.Spawn.Position),
			SpawnTick:  rec.Spawn.Tick,
		}
		seen(rec.Spawn.Tick)
		if rec.Despawn != nil {
			e.DespawnTick = rec.Despawn.Tick
			e.DespawnReason = rec.Despawn.Reason
			seen(rec.Despawn.Tick)
		}
		export.Entities = append(export.Entities, e)
	}
	sort.Slice(export.Entities, func(i, j int) bool {
		if export.Entities[i].SpawnTick != export.Entities[j].SpawnTick {
			return export.Entities[i].SpawnTick < export.Entities[j].SpawnTick
		}
		return export.Entities[i].ID < export.Entities[j].ID
	})

	for _, p := range data.Projectiles {
		out := Projectile{
			ID:         uint64(p.Entity),
			CasterID:   uint64(p.Caster),
			CastAt:     vec(p.CastAt),
			Velocity:   vec(p.Velocity),
			Reason:     p.Reason,
			Trajectory: make([][4]float64, 0, len(p.Trajectory)),
		}
		for _, tp := range p.Trajectory {
			out.Trajectory = append(out.Trajectory, [4]float64{
				float64(tp.Position.X), float64(tp.Position.Y), float64(tp.Position.Z), float64(tp.Tick),
			})
			seen(tp.Tick)
		}
		export.Projectiles = append(export.Projectiles, out)
	}

	// events: [tick, type, playerId, detail]
	for _, c := range data.Connections {
		typ := EventDisconnected
		if c.Connected {
			typ = EventConnected
		}
		export.Events = append(export.Events, []any{c.Tick, typ, uint64(c.PlayerID), c.Bot})
		seen(c.Tick)
	}
	for _, q := range data.Equips {
		typ := EventUnequipped
		if q.Equipped {
			typ = EventEquipped
		}
		export.Events = append(export.Events, []any{q.Tick, typ, uint64(q.PlayerID), q.ItemName})
		seen(q.Tick)
	}
	sort.SliceStable(export.Events, func(i, j int) bool {
		return export.Events[i][0].(uint64) < export.Events[j][0].(uint64)
	})

	for _, s := range data.Performance {
		export.Performance = append(export.Performance, Sample{
			Tick:        s.Tick,
			Time:        formatTime(s.Time),
			Connections: s.Connections,
			Bots:        s.Bots,
			Players:     s.Players,
			Projectiles: s.Projectiles,
			Items:       s.Items,
			TickMs:      float64(s.TickDuration) / float64(time.Millisecond),
		})
		seen(s.Tick)
	}

	export.EndTick = endTick
	return export
}

func vec(v core.Vec3) [3]float32 {
	return [3]float32{v.X, v.Y, v.Z}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
