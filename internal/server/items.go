package server

import (
	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/internal/world"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// SpawnItem places an item in the world and announces it.
func (e *Engine) SpawnItem(spec ItemSpec) core.EntityID {
	id := e.world.Spawn(world.Entity{
		Kind:      world.KindItem,
		Name:      spec.Name,
		Model:     spec.Model,
		Transform: core.NewTransform(spec.Position),
	})
	e.broadcast(protocol.SpawnItem{Entity: id, Name: spec.Name, Model: spec.Model, Translation: spec.Position})

	now := e.now()
	e.record(func(b storage.Backend) error {
		return b.RecordSpawn(&core.SpawnEvent{Time: now, Tick: e.tick, Entity: id, Kind: world.KindItem.String(), Position: spec.Position, Name: spec.Name})
	})
	return id
}

// RemoveItem takes an item out of the world. A holder is unequipped first.
func (e *Engine) RemoveItem(id core.EntityID) bool {
	item, ok := e.world.Get(id)
	if !ok || item.Kind != world.KindItem {
		return false
	}
	if holder, ok := e.world.Get(item.Holder); ok {
		e.unequip(holder, true)
	}
	return e.world.Despawn(id, world.ReasonRemoved)
}

// interact equips the nearest free item in reach of a, if a holds nothing.
func (e *Engine) interact(a *world.Entity) {
	if !a.Held.IsZero() {
		return
	}
	var (
		best     *world.Entity
		bestDist = e.cfg.InteractRadius
	)
	e.world.Each(world.KindItem, func(it *world.Entity) {
		if !it.Holder.IsZero() {
			return
		}
		if d := it.Transform.Translation.Distance(a.Transform.Translation); d <= bestDist {
			best, bestDist = it, d
		}
	})
	if best == nil {
		e.logger.Debug("nothing to interact with", "player", uint64(a.Player))
		return
	}
	e.equip(a, best)
}

func (e *Engine) equip(a, item *world.Entity) {
	item.Holder = a.ID
	a.Held = item.ID
	e.broadcast(protocol.EquipItem{PlayerID: a.Player, ItemEntity: item.ID, ItemName: item.Name, ItemModel: item.Model})

	now := e.now()
	e.record(func(b storage.Backend) error {
		return b.RecordEquip(&core.EquipEvent{Time: now, Tick: e.tick, PlayerID: a.Player, Item: item.ID, ItemName: item.Name, Equipped: true})
	})
}

// unequip returns the held item to its place in the world. forced marks an
// unequip the player did not ask for, such as on disconnect.
func (e *Engine) unequip(a *world.Entity, forced bool) {
	itemID := a.Held
	a.Held = 0
	var name string
	if item, ok := e.world.Get(itemID); ok {
		item.Holder = 0
		name = item.Name
	}
	e.broadcast(protocol.UnequipItem{PlayerID: a.Player})

	now := e.now()
	e.record(func(b storage.Backend) error {
		return b.RecordEquip(&core.EquipEvent{Time: now, Tick: e.tick, PlayerID: a.Player, Item: itemID, ItemName: name, Forced: forced})
	})
}
