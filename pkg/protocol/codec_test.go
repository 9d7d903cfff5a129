package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/OCAP2/replication/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(n int) NetworkedEntities {
	s := NetworkedEntities{
		Entities:     []core.EntityID{},
		Translations: []core.Vec3{},
		Rotations:    []core.Quat{},
	}
	for i := 0; i < n; i++ {
		s.Append(core.NewEntityID(uint32(i), 1), core.Transform{
			Translation: core.Vec3{X: float32(i), Y: 0.5, Z: -float32(i)},
			Rotation:    core.Quat{X: 0.1, Y: float32(i) / 10, Z: 0.3, W: 0.9},
		})
	}
	return s
}

func TestRoundTrip_ServerMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  ServerMessage
	}{
		{"player create", PlayerCreate{ID: 7, Entity: core.NewEntityID(3, 2), Translation: core.Vec3{Y: 2}}},
		{"player remove", PlayerRemove{ID: math.MaxUint64}},
		{"spawn projectile", SpawnProjectile{Entity: core.NewEntityID(9, 1), Translation: core.Vec3{X: 0.495, Y: 1, Z: 0.495}}},
		{"despawn projectile", DespawnProjectile{Entity: core.NewEntityID(9, 1)}},
		{"spawn item", SpawnItem{Entity: core.NewEntityID(1, 1), Name: "Sword", Model: "models/sword.glb#Scene0", Translation: core.Vec3{X: -3}}},
		{"spawn item empty strings", SpawnItem{Entity: core.NewEntityID(1, 1)}},
		{"despawn item", DespawnItem{Entity: core.NewEntityID(1, 4)}},
		{"equip item", EquipItem{PlayerID: 3, ItemEntity: core.NewEntityID(4, 1), ItemName: "Shield", ItemModel: "shield.glb"}},
		{"unequip item", UnequipItem{PlayerID: 3}},
		{"snapshot empty", snapshotOf(0)},
		{"snapshot single", snapshotOf(1)},
		{"snapshot many", snapshotOf(37)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Marshal(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, byte(tt.msg.Kind()), b[0])

			got, err := DecodeServer(b)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestRoundTrip_ClientMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  ClientMessage
	}{
		{"movement none", MovementInput{}},
		{"movement all", MovementInput{Up: true, Down: true, Left: true, Right: true, Interact: true}},
		{"movement mixed", MovementInput{Up: true, Right: true}},
		{"rotation", RotationReport{Rotation: core.QuatFromYaw(1.2)}},
		{"position", PositionReport{Translation: core.Vec3{X: 1.5, Y: 0.5, Z: -9}}},
		{"interact", Interact{}},
		{"basic attack", BasicAttack{CastAt: core.Vec3{X: 5, Z: 5}}},
		{"equip request", EquipRequest{ItemEntity: core.NewEntityID(2, 3)}},
		{"unequip request", UnequipRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Marshal(tt.msg)
			require.NoError(t, err)

			got, err := DecodeClient(b)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestSnapshotArrayLengths(t *testing.T) {
	for _, n := range []int{0, 1, 5, 200} {
		b, err := Marshal(snapshotOf(n))
		require.NoError(t, err)
		// kind + 3 counts + payload
		assert.Len(t, b, 1+3*4+n*(8+vec3Size+quatSize))

		got, err := DecodeServer(b)
		require.NoError(t, err)
		snap, ok := got.(NetworkedEntities)
		require.True(t, ok)
		assert.Equal(t, n, snap.Len())
		assert.Len(t, snap.Translations, n)
		assert.Len(t, snap.Rotations, n)
	}
}

func TestFixedWidthLayout(t *testing.T) {
	b, err := Marshal(PlayerCreate{ID: 1, Entity: 2, Translation: core.Vec3{X: 1}})
	require.NoError(t, err)
	want := []byte{
		byte(KindPlayerCreate),
		1, 0, 0, 0, 0, 0, 0, 0,
		2, 0, 0, 0, 0, 0, 0, 0,
		0x00, 0x00, 0x80, 0x3f, // 1.0f
		0, 0, 0, 0,
		0, 0, 0, 0,
	}
	assert.Equal(t, want, b)
}

func TestMarshal_Errors(t *testing.T) {
	_, err := Marshal(nil)
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Marshal(NetworkedEntities{
		Entities:     []core.EntityID{1, 2},
		Translations: []core.Vec3{{}},
		Rotations:    []core.Quat{{}, {}},
	})
	assert.ErrorIs(t, err, ErrBatchMismatch)

	long := make([]byte, maxStringLen+1)
	_, err = Marshal(SpawnItem{Name: string(long)})
	assert.Error(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	valid := MustMarshal(PlayerCreate{ID: 7, Entity: 1, Translation: core.Vec3{Y: 2}})
	snap := MustMarshal(snapshotOf(2))

	mismatched := MustMarshal(snapshotOf(1))
	// bump the rotations count from 1 to 2
	rotCountAt := 1 + 4 + 8 + 4 + vec3Size
	mismatched[rotCountAt] = 2

	tests := []struct {
		name   string
		server bool
		data   []byte
	}{
		{"empty server", true, nil},
		{"empty client", false, []byte{}},
		{"unknown server kind", true, []byte{0xEE}},
		{"client kind on server decoder", true, MustMarshal(Interact{})},
		{"server kind on client decoder", false, valid},
		{"truncated", true, valid[:len(valid)-1]},
		{"trailing bytes", true, append(append([]byte{}, valid...), 0)},
		{"truncated snapshot", true, snap[:len(snap)-3]},
		{"snapshot count mismatch", true, mismatched},
		{"huge snapshot count", true, []byte{byte(KindNetworkedEntities), 0xff, 0xff, 0xff, 0x7f}},
		{"bad bool", false, []byte{byte(KindMovementInput), 1, 0, 2, 0, 0}},
		{"string past end", true, []byte{byte(KindSpawnItem), 1, 0, 0, 0, 0, 0, 0, 0, 10, 0, 'a'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.server {
				_, err = DecodeServer(tt.data)
			} else {
				_, err = DecodeClient(tt.data)
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestKinds_ChannelAssignment(t *testing.T) {
	server := []ServerMessage{
		PlayerCreate{}, PlayerRemove{}, SpawnProjectile{}, DespawnProjectile{},
		SpawnItem{}, DespawnItem{}, EquipItem{}, UnequipItem{}, NetworkedEntities{},
	}
	require.Len(t, server, len(ServerKinds()))
	for i, m := range server {
		assert.Equal(t, ServerKinds()[i], m.Kind())
		if m.Kind() == KindNetworkedEntities {
			assert.False(t, m.Channel().Reliable())
		} else {
			assert.Equal(t, ChannelEvents, m.Channel(), m.Kind().String())
		}
	}

	reliable := map[Kind]bool{
		KindInteract: true, KindBasicAttack: true, KindEquipRequest: true, KindUnequipRequest: true,
	}
	client := []ClientMessage{
		MovementInput{}, RotationReport{}, PositionReport{}, Interact{},
		BasicAttack{}, EquipRequest{}, UnequipRequest{},
	}
	require.Len(t, client, len(ClientKinds()))
	for i, m := range client {
		assert.Equal(t, ClientKinds()[i], m.Kind())
		assert.Equal(t, reliable[m.Kind()], m.Channel().Reliable(), m.Kind().String())
	}
}

func TestChannels(t *testing.T) {
	cfgs := Channels()
	require.Len(t, cfgs, 4)
	assert.True(t, ChannelEvents.Reliable())
	assert.False(t, ChannelSnapshot.Reliable())
	assert.True(t, ChannelCommand.Reliable())
	assert.False(t, ChannelInput.Reliable())

	assert.False(t, Channel(9).Valid())
	assert.False(t, Channel(9).Reliable())
	assert.Equal(t, "channel(9)", Channel(9).String())
	assert.Equal(t, "snapshot", ChannelSnapshot.String())

	// callers get a copy
	cfgs[0].Name = "mutated"
	assert.Equal(t, "events", Channels()[0].Name)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "BasicAttack", KindBasicAttack.String())
	assert.Equal(t, "kind(0xee)", Kind(0xEE).String())
}
