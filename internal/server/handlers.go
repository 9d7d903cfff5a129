package server

import (
	"fmt"

	"github.com/OCAP2/replication/internal/dispatcher"
	"github.com/OCAP2/replication/internal/world"
	"github.com/OCAP2/replication/pkg/protocol"
)

func (e *Engine) registerHandlers() {
	d := e.dispatch
	d.Register(protocol.KindMovementInput, e.onMovement)
	d.Register(protocol.KindRotationReport, e.onRotation)
	d.Register(protocol.KindPositionReport, e.onPosition)
	d.Register(protocol.KindInteract, e.onInteract, dispatcher.Logged())
	d.Register(protocol.KindBasicAttack, e.onBasicAttack, dispatcher.Logged())
	d.Register(protocol.KindEquipRequest, e.onEquipRequest, dispatcher.Logged())
	d.Register(protocol.KindUnequipRequest, e.onUnequipRequest, dispatcher.Logged())
}

func (e *Engine) avatarFor(env dispatcher.Envelope) (*world.Entity, error) {
	a, ok := e.Avatar(env.Player)
	if !ok {
		return nil, fmt.Errorf("player %d: %w", env.Player, ErrNotSpawned)
	}
	return a, nil
}

func (e *Engine) onMovement(env dispatcher.Envelope) error {
	a, err := e.avatarFor(env)
	if err != nil {
		return err
	}
	m := env.Message.(protocol.MovementInput)
	a.Input = world.Input{Up: m.Up, Down: m.Down, Left: m.Left, Right: m.Right}
	if m.Interact {
		e.interact(a)
	}
	return nil
}

// Client-reported transforms are applied as-is.
func (e *Engine) onRotation(env dispatcher.Envelope) error {
	a, err := e.avatarFor(env)
	if err != nil {
		return err
	}
	a.Transform.Rotation = env.Message.(protocol.RotationReport).Rotation
	return nil
}

func (e *Engine) onPosition(env dispatcher.Envelope) error {
	a, err := e.avatarFor(env)
	if err != nil {
		return err
	}
	a.Transform.Translation = env.Message.(protocol.PositionReport).Translation
	return nil
}

func (e *Engine) onInteract(env dispatcher.Envelope) error {
	a, err := e.avatarFor(env)
	if err != nil {
		return err
	}
	e.interact(a)
	return nil
}

func (e *Engine) onBasicAttack(env dispatcher.Envelope) error {
	a, err := e.avatarFor(env)
	if err != nil {
		return err
	}
	e.cast(a, env.Message.(protocol.BasicAttack).CastAt)
	return nil
}

func (e *Engine) onEquipRequest(env dispatcher.Envelope) error {
	a, err := e.avatarFor(env)
	if err != nil {
		return err
	}
	req := env.Message.(protocol.EquipRequest)
	item, ok := e.world.Get(req.ItemEntity)
	switch {
	case !ok || item.Kind != world.KindItem:
		return fmt.Errorf("item %s: %w", req.ItemEntity, ErrItemUnavailable)
	case item.Holder == a.ID:
		return nil
	case !item.Holder.IsZero():
		return fmt.Errorf("item %s is held: %w", req.ItemEntity, ErrItemUnavailable)
	case item.Transform.Translation.Distance(a.Transform.Translation) > e.cfg.InteractRadius:
		return fmt.Errorf("item %s out of reach: %w", req.ItemEntity, ErrItemUnavailable)
	}
	if !a.Held.IsZero() {
		e.unequip(a, false)
	}
	e.equip(a, item)
	return nil
}

func (e *Engine) onUnequipRequest(env dispatcher.Envelope) error {
	a, err := e.avatarFor(env)
	if err != nil {
		return err
	}
	if !a.Held.IsZero() {
		e.unequip(a, false)
	}
	return nil
}
