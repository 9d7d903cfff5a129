// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/OCAP2/replication/internal/model"
	"github.com/OCAP2/replication/pkg/core"
)

// vec3ToPoint converts a core.Vec3 to a 3D geom.Point.
func vec3ToPoint(v core.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: float64(v.X), Y: float64(v.Y)},
		Z:    float64(v.Z),
		Type: geom.DimXYZ,
	})
}

// settingsToJSON converts session settings to datatypes.JSON for DB storage.
func settingsToJSON(settings map[string]any) datatypes.JSON {
	if len(settings) == 0 {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
// core.Session.ID maps to the UUID column; the row ID is assigned by the DB.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		UUID:      s.ID,
		Name:      s.Name,
		StartedAt: s.StartedAt,
		Settings:  settingsToJSON(s.Settings),
	}
}

func CoreToConnection(e core.ConnectionEvent) model.Connection {
	return model.Connection{
		Time:      e.Time,
		Tick:      e.Tick,
		PlayerID:  uint64(e.PlayerID),
		Connected: e.Connected,
		Bot:       e.Bot,
	}
}

func CoreToSpawn(e core.SpawnEvent) model.Spawn {
	return model.Spawn{
		Time:     e.Time,
		Tick:     e.Tick,
		EntityID: uint64(e.Entity),
		Kind:     e.Kind,
		PlayerID: uint64(e.PlayerID),
		Position: vec3ToPoint(e.Position),
		Name:     e.Name,
	}
}

func CoreToDespawn(e core.DespawnEvent) model.Despawn {
	return model.Despawn{
		Time:     e.Time,
		Tick:     e.Tick,
		EntityID: uint64(e.Entity),
		Kind:     e.Kind,
		Reason:   e.Reason,
	}
}

// CoreToProjectile converts a core.ProjectileEvent to a GORM model.Projectile.
// The trajectory becomes a LineStringZM with the tick as the measure; fewer
// than two samples leave it empty.
func CoreToProjectile(e core.ProjectileEvent) model.Projectile {
	result := model.Projectile{
		Time:     e.Time,
		EntityID: uint64(e.Entity),
		CasterID: uint64(e.Caster),
		CastAt:   vec3ToPoint(e.CastAt),
		Velocity: vec3ToPoint(e.Velocity),
		Reason:   e.Reason,
	}

	if len(e.Trajectory) >= 2 {
		coords := make([]float64, 0, len(e.Trajectory)*4)
		for _, tp := range e.Trajectory {
			coords = append(coords, float64(tp.Position.X), float64(tp.Position.Y), float64(tp.Position.Z), float64(tp.Tick))
		}
		seq := geom.NewSequence(coords, geom.DimXYZM)
		result.Trajectory = geom.NewLineString(seq).AsGeometry()
	}
	return result
}

func CoreToEquip(e core.EquipEvent) model.Equip {
	return model.Equip{
		Time:     e.Time,
		Tick:     e.Tick,
		PlayerID: uint64(e.PlayerID),
		ItemID:   uint64(e.Item),
		ItemName: e.ItemName,
		Equipped: e.Equipped,
		Forced:   e.Forced,
	}
}
