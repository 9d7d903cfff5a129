package convert

import (
	"testing"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replication/pkg/core"
)

func TestVec3PointRoundTrip(t *testing.T) {
	v := core.Vec3{X: 1.5, Y: -2, Z: 40.25}
	pt := vec3ToPoint(v)
	assert.Equal(t, geom.DimXYZ, pt.CoordinatesType())
	assert.Equal(t, v, pointToVec3(pt))
}

func TestPointToVec3_Empty(t *testing.T) {
	assert.Equal(t, core.Vec3{}, pointToVec3(geom.Point{}))
}

func TestSessionRoundTrip(t *testing.T) {
	s := core.Session{
		ID:        "0b6a1f1e-5d0c-4c57-9f0a-6c0e2d0c8a11",
		Name:      "arena",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Settings:  map[string]any{"bots": float64(2)},
	}
	m := CoreToSession(s)
	assert.Equal(t, s.ID, m.UUID)
	assert.JSONEq(t, `{"bots":2}`, string(m.Settings))
	assert.Equal(t, s, SessionToCore(m))
}

func TestCoreToSession_EmptySettings(t *testing.T) {
	m := CoreToSession(core.Session{ID: "x"})
	assert.Equal(t, "{}", string(m.Settings))
}

func TestCoreToConnection(t *testing.T) {
	now := time.Now()
	m := CoreToConnection(core.ConnectionEvent{Time: now, Tick: 9, PlayerID: 3, Connected: true, Bot: true})
	assert.Equal(t, now, m.Time)
	assert.Equal(t, uint64(9), m.Tick)
	assert.Equal(t, uint64(3), m.PlayerID)
	assert.True(t, m.Connected)
	assert.True(t, m.Bot)
}

func TestSpawnRoundTrip(t *testing.T) {
	e := core.SpawnEvent{
		Time:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tick:     4,
		Entity:   core.NewEntityID(2, 1),
		Kind:     "item",
		Position: core.Vec3{X: 1, Y: 2, Z: 3},
		Name:     "Sword",
	}
	assert.Equal(t, e, SpawnToCore(CoreToSpawn(e)))
}

func TestCoreToDespawnAndEquip(t *testing.T) {
	d := CoreToDespawn(core.DespawnEvent{Entity: core.NewEntityID(1, 2), Kind: "projectile", Reason: "expired"})
	assert.Equal(t, uint64(core.NewEntityID(1, 2)), d.EntityID)
	assert.Equal(t, "expired", d.Reason)

	q := CoreToEquip(core.EquipEvent{PlayerID: 5, Item: core.NewEntityID(3, 1), ItemName: "Sword", Forced: true})
	assert.Equal(t, uint64(5), q.PlayerID)
	assert.Equal(t, "Sword", q.ItemName)
	assert.True(t, q.Forced)
	assert.False(t, q.Equipped)
}

func TestProjectileRoundTrip(t *testing.T) {
	e := core.ProjectileEvent{
		Time:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Entity:   core.NewEntityID(7, 3),
		Caster:   2,
		CastAt:   core.Vec3{X: 5, Z: 5},
		Velocity: core.Vec3{X: 7.5, Z: 7.5},
		Reason:   "expired",
		Trajectory: []core.TrajectoryPoint{
			{Position: core.Vec3{X: 0.5, Y: 1, Z: 0.5}, Tick: 10},
			{Position: core.Vec3{X: 1.5, Y: 1, Z: 1.5}, Tick: 16},
			{Position: core.Vec3{X: 2.5, Y: 1, Z: 2.5}, Tick: 22},
		},
	}
	m := CoreToProjectile(e)
	require.False(t, m.Trajectory.IsEmpty())
	ls, ok := m.Trajectory.AsLineString()
	require.True(t, ok)
	assert.Equal(t, geom.DimXYZM, ls.CoordinatesType())

	assert.Equal(t, e, ProjectileToCore(m))
}

func TestCoreToProjectile_ShortTrajectory(t *testing.T) {
	m := CoreToProjectile(core.ProjectileEvent{
		Trajectory: []core.TrajectoryPoint{{Position: core.Vec3{X: 1}}},
	})
	assert.True(t, m.Trajectory.IsEmpty())
	assert.Empty(t, ProjectileToCore(m).Trajectory)
}
