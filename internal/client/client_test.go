package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replication/internal/mapping"
	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// fakeConn is a transport.Client with a fixed id whose inbound queues are
// filled directly by the test.
type fakeConn struct {
	id     core.PlayerID
	inbox  map[protocol.Channel][][]byte
	sent   []protocol.ClientMessage
	closed bool
}

var _ transport.Client = (*fakeConn)(nil)

func newFakeConn(id core.PlayerID) *fakeConn {
	return &fakeConn{id: id, inbox: make(map[protocol.Channel][][]byte)}
}

func (c *fakeConn) ID() core.PlayerID { return c.id }

func (c *fakeConn) Receive(ch protocol.Channel) [][]byte {
	out := c.inbox[ch]
	delete(c.inbox, ch)
	return out
}

func (c *fakeConn) Send(ch protocol.Channel, payload []byte) error {
	if c.closed {
		return transport.ErrClosed
	}
	m, err := protocol.DecodeClient(payload)
	if err != nil {
		return err
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Close() error { c.closed = true; return nil }
func (c *fakeConn) Err() error   { return nil }

func (c *fakeConn) push(t *testing.T, msgs ...protocol.ServerMessage) {
	t.Helper()
	for _, m := range msgs {
		b, err := protocol.Marshal(m)
		require.NoError(t, err)
		c.inbox[m.Channel()] = append(c.inbox[m.Channel()], b)
	}
}

func newTestReconciler(self core.PlayerID) (*Reconciler, *fakeConn, *MemoryScene) {
	conn := newFakeConn(self)
	scene := NewMemoryScene()
	return New(conn, scene), conn, scene
}

func TestReconciler_OwnPlayerCreateAndRemove(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	e1 := core.NewEntityID(0, 1)

	conn.push(t, protocol.PlayerCreate{ID: 7, Entity: e1, Translation: core.Vec3{Y: 2}})
	require.NoError(t, r.Tick())

	avatar, ok := r.Controlled()
	require.True(t, ok)
	local, ok := r.Resolve(e1)
	require.True(t, ok)
	assert.Equal(t, avatar, local)
	node, ok := scene.Node(avatar)
	require.True(t, ok)
	assert.Equal(t, NodeAvatar, node.Kind)
	assert.Equal(t, core.Vec3{Y: 2}, node.Transform.Translation)

	conn.push(t, protocol.PlayerRemove{ID: 7})
	require.NoError(t, r.Tick())

	_, ok = r.Resolve(e1)
	assert.False(t, ok)
	_, ok = r.Controlled()
	assert.False(t, ok)
	assert.Zero(t, scene.Len())
}

func TestReconciler_RemotePlayer(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	conn.push(t, protocol.PlayerCreate{ID: 3, Entity: core.NewEntityID(4, 1)})
	require.NoError(t, r.Tick())

	_, ok := r.Controlled()
	assert.False(t, ok)
	require.Len(t, scene.Nodes(NodeRemotePlayer), 1)
	assert.Equal(t, []core.PlayerID{3}, r.Players())
}

func TestReconciler_DoubleRemoveIsNoop(t *testing.T) {
	r, conn, _ := newTestReconciler(7)
	conn.push(t,
		protocol.PlayerCreate{ID: 3, Entity: core.NewEntityID(1, 1)},
		protocol.PlayerRemove{ID: 3},
		protocol.PlayerRemove{ID: 3},
		protocol.DespawnProjectile{Entity: core.NewEntityID(9, 9)},
	)
	require.NoError(t, r.Tick())
	assert.Zero(t, r.Tracked())
	assert.Equal(t, uint64(2), r.Stats().Unknown)
}

func TestReconciler_ProjectileSpawnDespawn(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	p1 := core.NewEntityID(1, 1)
	p2 := core.NewEntityID(2, 1)

	conn.push(t,
		protocol.SpawnProjectile{Entity: p1, Translation: core.Vec3{X: 1}},
		protocol.SpawnProjectile{Entity: p2, Translation: core.Vec3{X: 2}},
		protocol.DespawnProjectile{Entity: p1},
	)
	require.NoError(t, r.Tick())

	assert.Equal(t, 1, r.Tracked())
	_, ok := r.Resolve(p1)
	assert.False(t, ok)
	local, ok := r.Resolve(p2)
	require.True(t, ok)

	nodes := scene.Nodes(NodeProjectile)
	require.Len(t, nodes, 1)
	assert.Equal(t, local, nodes[0].ID)
	assert.Equal(t, core.Vec3{X: 2}, nodes[0].Transform.Translation)
}

func TestReconciler_SnapshotNeverCreates(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	var batch protocol.NetworkedEntities
	batch.Append(core.NewEntityID(5, 2), core.NewTransform(core.Vec3{X: 9}))
	conn.push(t, batch)

	require.NoError(t, r.Tick())
	assert.Zero(t, r.Tracked())
	assert.Zero(t, scene.Len())
	assert.Equal(t, uint64(1), r.Stats().Snapshots)
	assert.Equal(t, uint64(1), r.Stats().Unknown)
}

func TestReconciler_SnapshotSkipsControlledAvatar(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	own := core.NewEntityID(0, 1)
	remote := core.NewEntityID(1, 1)
	conn.push(t,
		protocol.PlayerCreate{ID: 7, Entity: own, Translation: core.Vec3{Y: 2}},
		protocol.PlayerCreate{ID: 8, Entity: remote},
	)
	require.NoError(t, r.Tick())

	moved := core.Transform{Translation: core.Vec3{X: 4, Y: 1, Z: -3}, Rotation: core.QuatFromYaw(1)}
	for i := 0; i < 3; i++ {
		var batch protocol.NetworkedEntities
		batch.Append(own, core.NewTransform(core.Vec3{X: float32(100 + i)}))
		batch.Append(remote, moved)
		conn.push(t, batch)
	}
	require.NoError(t, r.Tick())

	avatar, _ := r.Controlled()
	node, _ := scene.Node(avatar)
	assert.Equal(t, core.Vec3{Y: 2}, node.Transform.Translation)
	assert.Equal(t, core.IdentityQuat(), node.Transform.Rotation)

	local, _ := r.Resolve(remote)
	node, _ = scene.Node(local)
	assert.Equal(t, moved, node.Transform)
}

func TestReconciler_SnapshotLastWins(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	p := core.NewEntityID(3, 1)
	conn.push(t, protocol.SpawnProjectile{Entity: p})
	for i := 1; i <= 3; i++ {
		var batch protocol.NetworkedEntities
		batch.Append(p, core.NewTransform(core.Vec3{Z: float32(i)}))
		conn.push(t, batch)
	}
	require.NoError(t, r.Tick())

	local, _ := r.Resolve(p)
	node, _ := scene.Node(local)
	assert.Equal(t, core.Vec3{Z: 3}, node.Transform.Translation)
}

func TestReconciler_EventsBeforeSnapshots(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	p := core.NewEntityID(3, 1)

	var batch protocol.NetworkedEntities
	batch.Append(p, core.NewTransform(core.Vec3{X: 5}))
	conn.push(t, batch)
	conn.push(t, protocol.SpawnProjectile{Entity: p})
	require.NoError(t, r.Tick())

	local, ok := r.Resolve(p)
	require.True(t, ok)
	node, _ := scene.Node(local)
	assert.Equal(t, core.Vec3{X: 5}, node.Transform.Translation)
}

func TestReconciler_EquipAndUnequip(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	player := core.NewEntityID(0, 1)
	item := core.NewEntityID(1, 1)
	conn.push(t,
		protocol.SpawnItem{Entity: item, Name: "Sword", Model: "sword.glb", Translation: core.Vec3{Z: 1}},
		protocol.PlayerCreate{ID: 8, Entity: player},
		protocol.EquipItem{PlayerID: 8, ItemEntity: item, ItemName: "Sword", ItemModel: "sword.glb"},
	)
	require.NoError(t, r.Tick())

	itemLocal, _ := r.Resolve(item)
	playerLocal, _ := r.Resolve(player)
	itemNode, _ := scene.Node(itemLocal)
	playerNode, _ := scene.Node(playerLocal)
	assert.False(t, itemNode.Visible)
	require.NotNil(t, playerNode.Attached)
	assert.Equal(t, Attachment{Name: "Sword", Model: "sword.glb"}, *playerNode.Attached)

	conn.push(t, protocol.UnequipItem{PlayerID: 8})
	require.NoError(t, r.Tick())

	itemNode, _ = scene.Node(itemLocal)
	playerNode, _ = scene.Node(playerLocal)
	assert.True(t, itemNode.Visible)
	assert.Nil(t, playerNode.Attached)
}

func TestReconciler_RemoveHolderRestoresItem(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	item := core.NewEntityID(1, 1)
	conn.push(t,
		protocol.SpawnItem{Entity: item, Name: "Sword"},
		protocol.PlayerCreate{ID: 8, Entity: core.NewEntityID(0, 1)},
		protocol.EquipItem{PlayerID: 8, ItemEntity: item, ItemName: "Sword"},
		protocol.PlayerRemove{ID: 8},
	)
	require.NoError(t, r.Tick())

	local, _ := r.Resolve(item)
	node, ok := scene.Node(local)
	require.True(t, ok)
	assert.True(t, node.Visible)
}

func TestReconciler_DuplicateRegistrationIsReturned(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	p := core.NewEntityID(1, 1)
	conn.push(t, protocol.SpawnProjectile{Entity: p}, protocol.SpawnProjectile{Entity: p})

	err := r.Tick()
	assert.ErrorIs(t, err, mapping.ErrDuplicateRegistration)
	assert.Equal(t, 1, scene.Len(), "the duplicate must not spawn")
}

func TestReconciler_MalformedDropped(t *testing.T) {
	r, conn, _ := newTestReconciler(7)
	conn.inbox[protocol.ChannelEvents] = [][]byte{{0xEE}, {byte(protocol.KindPlayerRemove)}}
	conn.push(t, protocol.SpawnProjectile{Entity: core.NewEntityID(1, 1)})

	b, err := protocol.Marshal(protocol.PlayerRemove{ID: 1})
	require.NoError(t, err)
	conn.inbox[protocol.ChannelSnapshot] = [][]byte{b}

	require.NoError(t, r.Tick())
	assert.Equal(t, 1, r.Tracked())
	assert.Equal(t, uint64(3), r.Stats().Malformed)
}

func TestReconciler_Reset(t *testing.T) {
	r, conn, scene := newTestReconciler(7)
	conn.push(t,
		protocol.PlayerCreate{ID: 7, Entity: core.NewEntityID(0, 1)},
		protocol.SpawnProjectile{Entity: core.NewEntityID(1, 1)},
	)
	require.NoError(t, r.Tick())
	require.Equal(t, 2, scene.Len())

	r.Reset()
	assert.Zero(t, scene.Len())
	assert.Zero(t, r.Tracked())
	assert.Empty(t, r.Players())
	_, ok := r.Controlled()
	assert.False(t, ok)
}

func TestInputSender_RateLimits(t *testing.T) {
	conn := newFakeConn(1)
	s := NewInputSender(conn)

	count := func(kind protocol.Kind) int {
		n := 0
		for _, m := range conn.sent {
			if m.Kind() == kind {
				n++
			}
		}
		return n
	}

	in := InputState{Up: true, Interact: true, Rotation: core.IdentityQuat()}
	for ms := 0; ms < 1000; ms += 10 {
		require.NoError(t, s.Update(time.Duration(ms)*time.Millisecond, in))
	}

	assert.Equal(t, 20, count(protocol.KindMovementInput))
	assert.Equal(t, 20, count(protocol.KindRotationReport))
	assert.Equal(t, 20, count(protocol.KindPositionReport))
	assert.Equal(t, 2, count(protocol.KindInteract))

	first, ok := conn.sent[0].(protocol.MovementInput)
	require.True(t, ok)
	assert.True(t, first.Up)
}

func TestInputSender_MovementCarriesLatestKeys(t *testing.T) {
	conn := newFakeConn(1)
	s := NewInputSender(conn)

	require.NoError(t, s.Update(0, InputState{Up: true}))
	// released between sends: held back until the interval passes
	require.NoError(t, s.Update(20*time.Millisecond, InputState{}))
	require.NoError(t, s.Update(40*time.Millisecond, InputState{}))
	require.NoError(t, s.Update(50*time.Millisecond, InputState{}))

	var moves []protocol.MovementInput
	for _, m := range conn.sent {
		if mv, ok := m.(protocol.MovementInput); ok {
			moves = append(moves, mv)
		}
	}
	require.Len(t, moves, 2)
	assert.Equal(t, protocol.MovementInput{Up: true}, moves[0])
	assert.Equal(t, protocol.MovementInput{}, moves[1])
}

func TestInputSender_Commands(t *testing.T) {
	conn := newFakeConn(1)
	s := NewInputSender(conn)

	require.NoError(t, s.Attack(core.Vec3{X: 5, Z: 5}))
	require.NoError(t, s.Equip(core.NewEntityID(2, 1)))
	require.NoError(t, s.Unequip())

	assert.Equal(t, []protocol.ClientMessage{
		protocol.BasicAttack{CastAt: core.Vec3{X: 5, Z: 5}},
		protocol.EquipRequest{ItemEntity: core.NewEntityID(2, 1)},
		protocol.UnequipRequest{},
	}, conn.sent)

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, s.Attack(core.Vec3{}), transport.ErrClosed)
}
