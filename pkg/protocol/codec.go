package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/replication/pkg/core"
)

var (
	// ErrMalformed is returned for payloads that do not decode into a known
	// message. Receivers drop such payloads.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownKind is returned when marshalling a message type the codec
	// does not know.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrBatchMismatch is returned when a snapshot's parallel slices differ
	// in length.
	ErrBatchMismatch = errors.New("snapshot arrays differ in length")
)

const (
	maxStringLen = math.MaxUint16
	// MaxBatch bounds the entity count of one snapshot.
	MaxBatch = 1 << 16

	vec3Size = 12
	quatSize = 16
)

// Marshal encodes m as a kind byte followed by its fields in declaration
// order, little-endian, fixed width, without padding.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("marshal nil message: %w", ErrUnknownKind)
	}
	w := writer{buf: make([]byte, 0, 32)}
	w.u8(uint8(m.Kind()))

	switch v := m.(type) {
	case PlayerCreate:
		w.u64(uint64(v.ID))
		w.u64(uint64(v.Entity))
		w.vec3(v.Translation)
	case PlayerRemove:
		w.u64(uint64(v.ID))
	case SpawnProjectile:
		w.u64(uint64(v.Entity))
		w.vec3(v.Translation)
	case DespawnProjectile:
		w.u64(uint64(v.Entity))
	case SpawnItem:
		w.u64(uint64(v.Entity))
		w.str(v.Name)
		w.str(v.Model)
		w.vec3(v.Translation)
	case DespawnItem:
		w.u64(uint64(v.Entity))
	case EquipItem:
		w.u64(uint64(v.PlayerID))
		w.u64(uint64(v.ItemEntity))
		w.str(v.ItemName)
		w.str(v.ItemModel)
	case UnequipItem:
		w.u64(uint64(v.PlayerID))
	case NetworkedEntities:
		n := len(v.Entities)
		if len(v.Translations) != n || len(v.Rotations) != n {
			return nil, fmt.Errorf("marshal %s: %w (%d/%d/%d)",
				m.Kind(), ErrBatchMismatch, n, len(v.Translations), len(v.Rotations))
		}
		if n > MaxBatch {
			return nil, fmt.Errorf("marshal %s: %d entities exceeds %d", m.Kind(), n, MaxBatch)
		}
		w.u32(uint32(n))
		for _, id := range v.Entities {
			w.u64(uint64(id))
		}
		w.u32(uint32(n))
		for _, t := range v.Translations {
			w.vec3(t)
		}
		w.u32(uint32(n))
		for _, r := range v.Rotations {
			w.quat(r)
		}
	case MovementInput:
		w.boolean(v.Up)
		w.boolean(v.Down)
		w.boolean(v.Left)
		w.boolean(v.Right)
		w.boolean(v.Interact)
	case RotationReport:
		w.quat(v.Rotation)
	case PositionReport:
		w.vec3(v.Translation)
	case Interact, UnequipRequest:
	case BasicAttack:
		w.vec3(v.CastAt)
	case EquipRequest:
		w.u64(uint64(v.ItemEntity))
	default:
		return nil, fmt.Errorf("marshal %T: %w", m, ErrUnknownKind)
	}

	if w.err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Kind(), w.err)
	}
	return w.buf, nil
}

// MustMarshal is Marshal for messages built by the caller that cannot fail
// to encode. It panics on error.
func MustMarshal(m Message) []byte {
	b, err := Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeServer decodes a server to client payload.
func DecodeServer(b []byte) (ServerMessage, error) {
	r := reader{buf: b}
	k := Kind(r.u8())

	var m ServerMessage
	switch k {
	case KindPlayerCreate:
		m = PlayerCreate{ID: core.PlayerID(r.u64()), Entity: core.EntityID(r.u64()), Translation: r.vec3()}
	case KindPlayerRemove:
		m = PlayerRemove{ID: core.PlayerID(r.u64())}
	case KindSpawnProjectile:
		m = SpawnProjectile{Entity: core.EntityID(r.u64()), Translation: r.vec3()}
	case KindDespawnProjectile:
		m = DespawnProjectile{Entity: core.EntityID(r.u64())}
	case KindSpawnItem:
		m = SpawnItem{Entity: core.EntityID(r.u64()), Name: r.str(), Model: r.str(), Translation: r.vec3()}
	case KindDespawnItem:
		m = DespawnItem{Entity: core.EntityID(r.u64())}
	case KindEquipItem:
		m = EquipItem{PlayerID: core.PlayerID(r.u64()), ItemEntity: core.EntityID(r.u64()), ItemName: r.str(), ItemModel: r.str()}
	case KindUnequipItem:
		m = UnequipItem{PlayerID: core.PlayerID(r.u64())}
	case KindNetworkedEntities:
		m = r.snapshot()
	default:
		if r.err == nil {
			r.fail("unknown server kind %s", k)
		}
	}
	return finish(&r, k, m)
}

// DecodeClient decodes a client to server payload.
func DecodeClient(b []byte) (ClientMessage, error) {
	r := reader{buf: b}
	k := Kind(r.u8())

	var m ClientMessage
	switch k {
	case KindMovementInput:
		m = MovementInput{Up: r.boolean(), Down: r.boolean(), Left: r.boolean(), Right: r.boolean(), Interact: r.boolean()}
	case KindRotationReport:
		m = RotationReport{Rotation: r.quat()}
	case KindPositionReport:
		m = PositionReport{Translation: r.vec3()}
	case KindInteract:
		m = Interact{}
	case KindBasicAttack:
		m = BasicAttack{CastAt: r.vec3()}
	case KindEquipRequest:
		m = EquipRequest{ItemEntity: core.EntityID(r.u64())}
	case KindUnequipRequest:
		m = UnequipRequest{}
	default:
		if r.err == nil {
			r.fail("unknown client kind %s", k)
		}
	}
	return finish(&r, k, m)
}

func finish[M Message](r *reader, k Kind, m M) (M, error) {
	if r.err == nil && r.off != len(r.buf) {
		r.fail("%d trailing bytes after %s", len(r.buf)-r.off, k)
	}
	if r.err != nil {
		var zero M
		return zero, r.err
	}
	return m, nil
}

type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) f32(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) vec3(v core.Vec3) {
	w.f32(v.X)
	w.f32(v.Y)
	w.f32(v.Z)
}

func (w *writer) quat(q core.Quat) {
	w.f32(q.X)
	w.f32(q.Y)
	w.f32(q.Z)
	w.f32(q.W)
}

func (w *writer) str(s string) {
	if len(s) > maxStringLen {
		if w.err == nil {
			w.err = fmt.Errorf("string of %d bytes exceeds %d", len(s), maxStringLen)
		}
		return
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// reader latches the first error; every later read returns a zero value.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.fail("need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) boolean() bool {
	switch v := r.u8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail("invalid bool byte 0x%02x", v)
		return false
	}
}

func (r *reader) vec3() core.Vec3 {
	return core.Vec3{X: r.f32(), Y: r.f32(), Z: r.f32()}
}

func (r *reader) quat() core.Quat {
	return core.Quat{X: r.f32(), Y: r.f32(), Z: r.f32(), W: r.f32()}
}

func (r *reader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// count reads an array length and checks the remaining buffer can hold it.
func (r *reader) count(elem int) int {
	n := int(r.u32())
	if r.err != nil {
		return 0
	}
	if n > MaxBatch {
		r.fail("batch of %d exceeds %d", n, MaxBatch)
		return 0
	}
	if n*elem > len(r.buf)-r.off {
		r.fail("batch of %d needs %d bytes, have %d", n, n*elem, len(r.buf)-r.off)
		return 0
	}
	return n
}

func (r *reader) snapshot() NetworkedEntities {
	var s NetworkedEntities

	n := r.count(8)
	s.Entities = make([]core.EntityID, n)
	for i := range s.Entities {
		s.Entities[i] = core.EntityID(r.u64())
	}

	if m := r.count(vec3Size); m != n && r.err == nil {
		r.fail("%d translations for %d entities", m, n)
	}
	s.Translations = make([]core.Vec3, n)
	for i := range s.Translations {
		s.Translations[i] = r.vec3()
	}

	if m := r.count(quatSize); m != n && r.err == nil {
		r.fail("%d rotations for %d entities", m, n)
	}
	s.Rotations = make([]core.Quat, n)
	for i := range s.Rotations {
		s.Rotations[i] = r.quat()
	}
	return s
}
