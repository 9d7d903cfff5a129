// Package client applies the server's replication stream to a local scene
// and sends the local player's input back.
package client

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/OCAP2/replication/internal/lobby"
	"github.com/OCAP2/replication/internal/mapping"
	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// Stats counts what the reconciler has applied.
type Stats struct {
	Events    uint64
	Snapshots uint64
	Malformed uint64
	// Unknown counts references to server entities with no local mirror.
	Unknown uint64
}

// Reconciler mirrors the authoritative world into a Scene. It is driven by
// one tick loop and is not safe for concurrent use.
type Reconciler struct {
	tr     transport.Client
	scene  Scene
	self   core.PlayerID
	logger zerolog.Logger

	mapping *mapping.Table
	lobby   *lobby.ClientLobby
	// held maps a player to the server item it carries.
	held map[core.PlayerID]core.EntityID

	controlled    core.LocalID
	hasControlled bool

	stats Stats
}

// New returns a reconciler for the connection tr, rendering into scene.
func New(tr transport.Client, scene Scene, opts ...Option) *Reconciler {
	r := &Reconciler{
		tr:      tr,
		scene:   scene,
		self:    tr.ID(),
		logger:  zerolog.Nop(),
		mapping: mapping.New(),
		lobby:   lobby.NewClientLobby(),
		held:    make(map[core.PlayerID]core.EntityID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tick drains the events channel and then the snapshot channel. Decode
// failures and unknown references are logged and skipped; only a duplicate
// registration is returned.
func (r *Reconciler) Tick() error {
	var errs []error
	for _, b := range r.tr.Receive(protocol.ChannelEvents) {
		m, ok := r.decode(protocol.ChannelEvents, b)
		if !ok {
			continue
		}
		r.stats.Events++
		if err := r.Apply(m); err != nil {
			errs = append(errs, err)
		}
	}
	for _, b := range r.tr.Receive(protocol.ChannelSnapshot) {
		m, ok := r.decode(protocol.ChannelSnapshot, b)
		if !ok {
			continue
		}
		if err := r.Apply(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) decode(ch protocol.Channel, b []byte) (protocol.ServerMessage, bool) {
	m, err := protocol.DecodeServer(b)
	if err == nil && m.Channel() != ch {
		err = fmt.Errorf("%s on channel %s", m.Kind(), ch)
	}
	if err != nil {
		r.stats.Malformed++
		r.logger.Warn().Err(err).Str("channel", ch.String()).Int("size", len(b)).Msg("Dropped server message")
		return nil, false
	}
	return m, true
}

// Apply applies a single server message.
func (r *Reconciler) Apply(m protocol.ServerMessage) error {
	switch m := m.(type) {
	case protocol.PlayerCreate:
		return r.playerCreate(m)
	case protocol.PlayerRemove:
		r.playerRemove(m.ID)
	case protocol.SpawnProjectile:
		_, err := r.mapping.Register(m.Entity, func() core.LocalID {
			return r.scene.SpawnProjectile(m.Translation)
		})
		return err
	case protocol.DespawnProjectile:
		r.despawn(m.Entity)
	case protocol.SpawnItem:
		_, err := r.mapping.Register(m.Entity, func() core.LocalID {
			return r.scene.SpawnItem(m.Name, m.Model, m.Translation)
		})
		return err
	case protocol.DespawnItem:
		for p, item := range r.held {
			if item == m.Entity {
				r.unequip(p)
			}
		}
		r.despawn(m.Entity)
	case protocol.EquipItem:
		r.equip(m)
	case protocol.UnequipItem:
		r.unequip(m.PlayerID)
	case protocol.NetworkedEntities:
		r.applySnapshot(m)
	default:
		return fmt.Errorf("unhandled server message %s", m.Kind())
	}
	return nil
}

func (r *Reconciler) playerCreate(m protocol.PlayerCreate) error {
	own := m.ID == r.self
	local, err := r.mapping.Register(m.Entity, func() core.LocalID {
		if own {
			return r.scene.SpawnAvatar(m.Translation)
		}
		return r.scene.SpawnRemotePlayer(m.Translation)
	})
	if err != nil {
		return err
	}
	if err := r.lobby.Add(m.ID, lobby.PlayerInfo{ServerEntity: m.Entity, ClientEntity: local}); err != nil {
		r.mapping.Unregister(m.Entity)
		r.scene.Despawn(local)
		return err
	}
	if own {
		r.controlled, r.hasControlled = local, true
	}
	r.logger.Debug().Uint64("player", uint64(m.ID)).Str("entity", m.Entity.String()).Bool("own", own).Msg("Player created")
	return nil
}

func (r *Reconciler) playerRemove(id core.PlayerID) {
	info, ok := r.lobby.Remove(id)
	if !ok {
		r.stats.Unknown++
		return
	}
	if _, holding := r.held[id]; holding {
		r.unequip(id)
	}
	r.despawn(info.ServerEntity)
	if r.hasControlled && info.ClientEntity == r.controlled {
		r.controlled, r.hasControlled = 0, false
	}
	r.logger.Debug().Uint64("player", uint64(id)).Msg("Player removed")
}

func (r *Reconciler) despawn(server core.EntityID) {
	local, ok := r.mapping.Unregister(server)
	if !ok {
		r.stats.Unknown++
		return
	}
	r.scene.Despawn(local)
}

func (r *Reconciler) equip(m protocol.EquipItem) {
	info, ok := r.lobby.Get(m.PlayerID)
	if !ok {
		r.stats.Unknown++
		return
	}
	if _, holding := r.held[m.PlayerID]; holding {
		r.unequip(m.PlayerID)
	}
	if item, ok := r.mapping.Resolve(m.ItemEntity); ok {
		r.scene.SetVisible(item, false)
	}
	r.scene.Attach(info.ClientEntity, m.ItemName, m.ItemModel)
	r.held[m.PlayerID] = m.ItemEntity
}

func (r *Reconciler) unequip(player core.PlayerID) {
	if item, ok := r.held[player]; ok {
		delete(r.held, player)
		if local, ok := r.mapping.Resolve(item); ok {
			r.scene.SetVisible(local, true)
		}
	}
	if info, ok := r.lobby.Get(player); ok {
		r.scene.Detach(info.ClientEntity)
	}
}

// applySnapshot overwrites the transform of every mirrored entity in the
// batch except the controlled avatar. Snapshots never create entities.
func (r *Reconciler) applySnapshot(m protocol.NetworkedEntities) {
	r.stats.Snapshots++
	for i, id := range m.Entities {
		local, ok := r.mapping.Resolve(id)
		if !ok {
			r.stats.Unknown++
			continue
		}
		if r.hasControlled && local == r.controlled {
			continue
		}
		r.scene.SetTransform(local, core.Transform{Translation: m.Translations[i], Rotation: m.Rotations[i]})
	}
}

// Controlled returns the local avatar, once the server has created it.
func (r *Reconciler) Controlled() (core.LocalID, bool) {
	return r.controlled, r.hasControlled
}

// Resolve returns the local mirror of a server entity.
func (r *Reconciler) Resolve(server core.EntityID) (core.LocalID, bool) {
	return r.mapping.Resolve(server)
}

// Tracked returns the number of mirrored server entities.
func (r *Reconciler) Tracked() int { return r.mapping.Len() }

// Players returns the players currently known, sorted.
func (r *Reconciler) Players() []core.PlayerID { return r.lobby.Players() }

// Self returns the local player id.
func (r *Reconciler) Self() core.PlayerID { return r.self }

// Stats returns the running counters.
func (r *Reconciler) Stats() Stats { return r.stats }

// Reset despawns every mirrored entity and forgets all state. Called when
// the connection is lost.
func (r *Reconciler) Reset() {
	r.mapping.Each(func(_ core.EntityID, local core.LocalID) {
		r.scene.Despawn(local)
	})
	r.mapping.Reset()
	r.lobby.Reset()
	clear(r.held)
	r.controlled, r.hasControlled = 0, false
}
