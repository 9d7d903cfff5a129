package world

import (
	"time"

	"github.com/OCAP2/replication/pkg/core"
)

// Step advances the simulation by dt. Players move according to their
// held keys at moveSpeed relative to their facing; projectiles fly along
// their velocity and expire when their lifetime runs out.
func (w *World) Step(dt time.Duration, moveSpeed float32) {
	secs := float32(dt.Seconds())

	w.Each(KindPlayer, func(e *Entity) {
		if e.Bot {
			return
		}
		e.Velocity = Movement(e.Input, e.Transform.Rotation, moveSpeed)
		e.Transform.Translation = e.Transform.Translation.Add(e.Velocity.Scale(secs))
	})

	w.Each(KindProjectile, func(e *Entity) {
		e.Transform.Translation = e.Transform.Translation.Add(e.Velocity.Scale(secs))
		e.Lifetime -= dt
		if e.Lifetime <= 0 {
			w.Despawn(e.ID, ReasonExpired)
		}
	})
}

// Movement converts held keys into a velocity for a body facing rotation.
// Only the heading counts: facing is flattened onto the ground plane, so the
// velocity never has a vertical part.
func Movement(in Input, rotation core.Quat, speed float32) core.Vec3 {
	x, z := in.Axes()
	forward := rotation.Forward().Flat().NormalizeOrZero()
	right := rotation.Right().Flat().NormalizeOrZero()
	dir := forward.Scale(-z).Add(right.Scale(x))
	return dir.NormalizeOrZero().Scale(speed)
}
