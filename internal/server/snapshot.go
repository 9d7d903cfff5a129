package server

import (
	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/internal/world"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// broadcastSnapshot sends the transforms of every player and projectile.
// Items are static while lying in the world and are never snapshotted. An
// empty batch is not sent.
func (e *Engine) broadcastSnapshot() {
	var batch protocol.NetworkedEntities
	e.world.Each(world.KindPlayer, func(p *world.Entity) {
		batch.Append(p.ID, p.Transform)
	})
	e.world.Each(world.KindProjectile, func(p *world.Entity) {
		batch.Append(p.ID, p.Transform)
		if f, ok := e.flights[p.ID]; ok {
			f.Trajectory = append(f.Trajectory, core.TrajectoryPoint{Position: p.Transform.Translation, Tick: e.tick})
		}
	})
	if batch.Len() == 0 {
		return
	}
	e.broadcast(batch)
	e.snapshots++
}

// flushRemovals turns the world's removals into despawn notifications.
func (e *Engine) flushRemovals() {
	for _, r := range e.world.DrainRemovals() {
		ent := r.Entity
		switch ent.Kind {
		case world.KindPlayer:
			e.broadcast(protocol.PlayerRemove{ID: ent.Player})
		case world.KindProjectile:
			e.broadcast(protocol.DespawnProjectile{Entity: ent.ID})
			e.finishFlight(ent, r.Reason)
		case world.KindItem:
			e.broadcast(protocol.DespawnItem{Entity: ent.ID})
		}

		now := e.now()
		e.record(func(b storage.Backend) error {
			return b.RecordDespawn(&core.DespawnEvent{Time: now, Tick: e.tick, Entity: ent.ID, Kind: ent.Kind.String(), Reason: string(r.Reason)})
		})
	}
}

func (e *Engine) finishFlight(p world.Entity, reason world.Reason) {
	f, ok := e.flights[p.ID]
	if !ok {
		return
	}
	delete(e.flights, p.ID)
	f.Trajectory = append(f.Trajectory, core.TrajectoryPoint{Position: p.Transform.Translation, Tick: e.tick})
	f.Reason = string(reason)
	e.record(func(b storage.Backend) error {
		return b.RecordProjectile(f)
	})
}
