package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/replication/internal/model"
	"github.com/OCAP2/replication/pkg/core"
)

// pointToVec3 converts a geom.Point to a core.Vec3. Empty points give the
// zero vector.
func pointToVec3(p geom.Point) core.Vec3 {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Vec3{}
	}
	return core.Vec3{X: float32(coord.XY.X), Y: float32(coord.XY.Y), Z: float32(coord.Z)}
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	result := core.Session{
		ID:        s.UUID,
		Name:      s.Name,
		StartedAt: s.StartedAt,
	}
	if len(s.Settings) > 0 {
		_ = json.Unmarshal(s.Settings, &result.Settings)
	}
	return result
}

// SpawnToCore converts a GORM Spawn to a core.SpawnEvent.
func SpawnToCore(s model.Spawn) core.SpawnEvent {
	return core.SpawnEvent{
		Time:     s.Time,
		Tick:     s.Tick,
		Entity:   core.EntityID(s.EntityID),
		Kind:     s.Kind,
		PlayerID: core.PlayerID(s.PlayerID),
		Position: pointToVec3(s.Position),
		Name:     s.Name,
	}
}

// ProjectileToCore converts a GORM Projectile back to a core.ProjectileEvent,
// rebuilding the trajectory from the LineStringZM.
func ProjectileToCore(p model.Projectile) core.ProjectileEvent {
	result := core.ProjectileEvent{
		Time:     p.Time,
		Entity:   core.EntityID(p.EntityID),
		Caster:   core.PlayerID(p.CasterID),
		CastAt:   pointToVec3(p.CastAt),
		Velocity: pointToVec3(p.Velocity),
		Reason:   p.Reason,
	}

	if p.Trajectory.IsEmpty() {
		return result
	}
	ls, ok := p.Trajectory.AsLineString()
	if !ok {
		return result
	}
	seq := ls.Coordinates()
	result.Trajectory = make([]core.TrajectoryPoint, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		c := seq.Get(i)
		result.Trajectory[i] = core.TrajectoryPoint{
			Position: core.Vec3{X: float32(c.X), Y: float32(c.Y), Z: float32(c.Z)},
			Tick:     uint64(c.M),
		}
	}
	return result
}
