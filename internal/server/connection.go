package server

import (
	"fmt"

	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/internal/world"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// handleConnect brings a new connection up to date and spawns its avatar.
// Catch-up goes to the new connection only and precedes the broadcast of
// the new avatar; both ride the events channel so the connection sees them
// in that order.
func (e *Engine) handleConnect(player core.PlayerID) error {
	if st := e.conns[player]; st != StateUnknown {
		return fmt.Errorf("connect for player %d in state %s", player, st)
	}
	e.conns[player] = StateConnecting

	e.catchUp(player)

	id := e.world.Spawn(world.Entity{
		Kind:      world.KindPlayer,
		Player:    player,
		Transform: core.NewTransform(e.cfg.SpawnPoint),
	})
	if err := e.lobby.Add(player, id); err != nil {
		e.world.Despawn(id, world.ReasonRemoved)
		e.world.DrainRemovals()
		return err
	}
	e.conns[player] = StateConnected

	e.broadcast(protocol.PlayerCreate{ID: player, Entity: id, Translation: e.cfg.SpawnPoint})

	e.logger.Info("Player connected", "player", uint64(player), "entity", id.String())
	now := e.now()
	e.record(func(b storage.Backend) error {
		return b.RecordConnection(&core.ConnectionEvent{Time: now, Tick: e.tick, PlayerID: player, Connected: true})
	})
	e.record(func(b storage.Backend) error {
		return b.RecordSpawn(&core.SpawnEvent{Time: now, Tick: e.tick, Entity: id, Kind: world.KindPlayer.String(), PlayerID: player, Position: e.cfg.SpawnPoint})
	})
	return nil
}

// catchUp sends every live reliable-created entity to player.
func (e *Engine) catchUp(player core.PlayerID) {
	for _, p := range e.lobby.Players() {
		ent, ok := e.Avatar(p)
		if !ok {
			continue
		}
		e.send(player, protocol.PlayerCreate{ID: p, Entity: ent.ID, Translation: ent.Transform.Translation})
	}

	var held []*world.Entity
	e.world.Each(world.KindItem, func(it *world.Entity) {
		e.send(player, protocol.SpawnItem{Entity: it.ID, Name: it.Name, Model: it.Model, Translation: it.Transform.Translation})
		if !it.Holder.IsZero() {
			held = append(held, it)
		}
	})
	for _, it := range held {
		if holder, ok := e.world.Get(it.Holder); ok {
			e.send(player, protocol.EquipItem{PlayerID: holder.Player, ItemEntity: it.ID, ItemName: it.Name, ItemModel: it.Model})
		}
	}

	e.world.Each(world.KindProjectile, func(p *world.Entity) {
		e.send(player, protocol.SpawnProjectile{Entity: p.ID, Translation: p.Transform.Translation})
	})
}

// handleDisconnect tears down one connection. Nothing outside that
// player's own state is touched.
func (e *Engine) handleDisconnect(player core.PlayerID, reason error) {
	if e.conns[player] == StateUnknown || e.conns[player] == StateDisconnected {
		e.logger.Debug("disconnect for unknown player", "player", uint64(player))
		return
	}
	e.conns[player] = StateDisconnected
	e.departed = append(e.departed, player)

	if id, ok := e.lobby.Remove(player); ok {
		if avatar, ok := e.world.Get(id); ok {
			if !avatar.Held.IsZero() {
				e.unequip(avatar, true)
			}
		}
		e.world.Despawn(id, world.ReasonDisconnected)
	}

	if reason != nil {
		e.logger.Warn("Player connection failed", "player", uint64(player), "error", reason)
	} else {
		e.logger.Info("Player disconnected", "player", uint64(player))
	}
	now := e.now()
	e.record(func(b storage.Backend) error {
		return b.RecordConnection(&core.ConnectionEvent{Time: now, Tick: e.tick, PlayerID: player, Bot: IsBot(player)})
	})
}
