package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/OCAP2/replication/internal/client"
	"github.com/OCAP2/replication/pkg/core"
)

// moveSpeed matches the server's default player speed.
const moveSpeed = 5

// changeEvery is how long the driver holds one direction.
const changeEvery = time.Second

// driver wanders the local avatar around and occasionally attacks.
type driver struct {
	rng        *rand.Rand
	attackRate time.Duration

	pos        core.Vec3
	yaw        float64
	keys       client.InputState
	nextTurn   time.Duration
	nextAttack time.Duration
}

func newDriver(rng *rand.Rand, attackRate time.Duration) *driver {
	return &driver{rng: rng, attackRate: attackRate, nextAttack: attackRate}
}

// place resets the local position, e.g. from the PlayerCreate spawn point.
func (d *driver) place(pos core.Vec3) { d.pos = pos }

// step advances the local simulation to now and returns the input to send.
func (d *driver) step(now, dt time.Duration) client.InputState {
	if now >= d.nextTurn {
		d.nextTurn = now + changeEvery
		d.keys = client.InputState{
			Up:    d.rng.Intn(2) == 0,
			Down:  d.rng.Intn(4) == 0,
			Left:  d.rng.Intn(3) == 0,
			Right: d.rng.Intn(3) == 0,
		}
		d.yaw = d.rng.Float64() * 2 * math.Pi
	}

	var dir core.Vec3
	if d.keys.Up {
		dir.Z--
	}
	if d.keys.Down {
		dir.Z++
	}
	if d.keys.Left {
		dir.X--
	}
	if d.keys.Right {
		dir.X++
	}
	d.pos = d.pos.Add(dir.NormalizeOrZero().Scale(moveSpeed * float32(dt.Seconds())))

	in := d.keys
	in.Position = d.pos
	in.Rotation = core.QuatFromYaw(d.yaw)
	return in
}

// attack returns a target when the attack timer has run out.
func (d *driver) attack(now time.Duration) (core.Vec3, bool) {
	if d.attackRate <= 0 || now < d.nextAttack {
		return core.Vec3{}, false
	}
	d.nextAttack = now + d.attackRate
	return d.pos.Add(core.QuatFromYaw(d.yaw).Forward().Scale(10)), true
}
