package server

import (
	"math"
	"time"

	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/internal/world"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// cast fires a projectile from caster toward castAt. The target is
// flattened to the caster's height, so aim only affects the heading.
func (e *Engine) cast(caster *world.Entity, castAt core.Vec3) core.EntityID {
	pos := caster.Transform.Translation
	castAt.Y = pos.Y
	dir := castAt.Sub(pos).NormalizeOrZero()

	origin := pos.Add(dir.Scale(e.cfg.CastOffset))
	origin.Y = e.cfg.CastHeight

	heading := dir
	if heading.IsZero() {
		heading = core.Vec3{X: 1}
	}
	return e.spawnProjectile(caster.Player, origin, castAt, heading.Scale(e.cfg.ProjectileSpeed))
}

func (e *Engine) spawnProjectile(owner core.PlayerID, origin, castAt, velocity core.Vec3) core.EntityID {
	id := e.world.Spawn(world.Entity{
		Kind:      world.KindProjectile,
		Player:    owner,
		Transform: core.NewTransform(origin),
		Velocity:  velocity,
		Lifetime:  e.cfg.ProjectileLifetime,
	})
	e.broadcast(protocol.SpawnProjectile{Entity: id, Translation: origin})

	if e.journal != nil {
		e.flights[id] = &core.ProjectileEvent{
			Time:       e.now(),
			Entity:     id,
			Caster:     owner,
			CastAt:     castAt,
			Velocity:   velocity,
			Trajectory: []core.TrajectoryPoint{{Position: origin, Tick: e.tick}},
		}
	}
	return id
}

// SpawnBot adds a server-driven player at a random spot and returns its id.
// Bots stand still and cast a ring of projectiles on a fixed interval.
func (e *Engine) SpawnBot() core.PlayerID {
	player := botIDBase + e.nextBot
	e.nextBot++

	half := e.cfg.BotSpread / 2
	pos := core.Vec3{
		X: (e.rng.Float32()*2 - 1) * half,
		Y: e.cfg.BotHeight,
		Z: (e.rng.Float32()*2 - 1) * half,
	}
	id := e.world.Spawn(world.Entity{
		Kind:        world.KindPlayer,
		Player:      player,
		Bot:         true,
		BotCooldown: e.cfg.BotCastInterval,
		Transform:   core.NewTransform(pos),
	})
	if err := e.lobby.Add(player, id); err != nil {
		// bot ids are never reused
		e.logger.Error("bot id collision", "player", uint64(player), "error", err)
		e.world.Despawn(id, world.ReasonRemoved)
		return 0
	}
	e.conns[player] = StateConnected
	e.broadcast(protocol.PlayerCreate{ID: player, Entity: id, Translation: pos})

	e.logger.Info("Bot spawned", "player", uint64(player), "entity", id.String())
	now := e.now()
	e.record(func(b storage.Backend) error {
		return b.RecordConnection(&core.ConnectionEvent{Time: now, Tick: e.tick, PlayerID: player, Connected: true, Bot: true})
	})
	e.record(func(b storage.Backend) error {
		return b.RecordSpawn(&core.SpawnEvent{Time: now, Tick: e.tick, Entity: id, Kind: world.KindPlayer.String(), PlayerID: player, Position: pos})
	})
	return player
}

// RemoveBots despawns every bot and returns how many were removed.
func (e *Engine) RemoveBots() int {
	n := 0
	for _, p := range e.lobby.Players() {
		if !IsBot(p) {
			continue
		}
		e.handleDisconnect(p, nil)
		n++
	}
	return n
}

// autocast counts down every bot's cooldown and fires a ring when it runs
// out. Casting spawns into the world, so bots are collected first.
func (e *Engine) autocast(dt time.Duration) {
	var ready []core.PlayerID
	e.world.Each(world.KindPlayer, func(p *world.Entity) {
		if !p.Bot {
			return
		}
		p.BotCooldown -= dt
		if p.BotCooldown <= 0 {
			p.BotCooldown += e.cfg.BotCastInterval
			ready = append(ready, p.Player)
		}
	})

	step := 2 * math.Pi / float64(e.cfg.BotRingSize)
	for _, owner := range ready {
		for i := 0; i < e.cfg.BotRingSize; i++ {
			// spawning can grow the arena and move the bot's slot
			bot, ok := e.Avatar(owner)
			if !ok {
				break
			}
			a := step * float64(i)
			ring := core.Vec3{X: float32(math.Cos(a)), Z: float32(math.Sin(a))}
			e.cast(bot, bot.Transform.Translation.Add(ring.Scale(e.cfg.BotRingOffset)))
		}
	}
}
