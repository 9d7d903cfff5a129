package client

import (
	"errors"
	"time"

	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

const (
	// ReportInterval bounds movement input and transform reports to 20 Hz.
	ReportInterval = 50 * time.Millisecond
	// InteractInterval bounds interact triggers.
	InteractInterval = 500 * time.Millisecond
)

// InputState is what the local player is doing this tick.
type InputState struct {
	Up, Down, Left, Right bool
	Interact              bool
	Rotation              core.Quat
	Position              core.Vec3
}

// InputSender turns local input into rate-limited client messages. The
// clock is whatever the tick loop passes in; it only has to be monotonic.
type InputSender struct {
	tr transport.Client

	reported     bool
	lastReport   time.Duration
	interacted   bool
	lastInteract time.Duration
}

// NewInputSender returns a sender writing to tr.
func NewInputSender(tr transport.Client) *InputSender {
	return &InputSender{tr: tr}
}

// Update sends the movement keys and the transform reports, then the
// interact trigger, each only if its interval has passed. Every send carries
// the state passed in now, so a key release reaches the server within one
// interval.
func (s *InputSender) Update(now time.Duration, in InputState) error {
	var errs []error

	if !s.reported || now-s.lastReport >= ReportInterval {
		s.reported, s.lastReport = true, now
		errs = append(errs,
			s.send(protocol.MovementInput{Up: in.Up, Down: in.Down, Left: in.Left, Right: in.Right}),
			s.send(protocol.RotationReport{Rotation: in.Rotation}),
			s.send(protocol.PositionReport{Translation: in.Position}))
	}

	if in.Interact && (!s.interacted || now-s.lastInteract >= InteractInterval) {
		s.interacted, s.lastInteract = true, now
		errs = append(errs, s.send(protocol.Interact{}))
	}
	return errors.Join(errs...)
}

// Attack casts toward a world point.
func (s *InputSender) Attack(castAt core.Vec3) error {
	return s.send(protocol.BasicAttack{CastAt: castAt})
}

// Equip asks to pick up a specific item.
func (s *InputSender) Equip(item core.EntityID) error {
	return s.send(protocol.EquipRequest{ItemEntity: item})
}

// Unequip drops the held item.
func (s *InputSender) Unequip() error {
	return s.send(protocol.UnequipRequest{})
}

func (s *InputSender) send(m protocol.ClientMessage) error {
	b, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	return s.tr.Send(m.Channel(), b)
}
