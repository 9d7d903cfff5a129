package client

import (
	"sort"

	"github.com/OCAP2/replication/pkg/core"
)

// Scene is the boundary to whatever renders and simulates the local world.
// The reconciler only ever talks to the scene through local handles.
type Scene interface {
	// SpawnAvatar creates the locally controlled, fully simulated avatar.
	SpawnAvatar(pos core.Vec3) core.LocalID
	// SpawnRemotePlayer creates a passive body driven only by snapshots.
	SpawnRemotePlayer(pos core.Vec3) core.LocalID
	SpawnProjectile(pos core.Vec3) core.LocalID
	SpawnItem(name, model string, pos core.Vec3) core.LocalID
	Despawn(id core.LocalID)
	SetTransform(id core.LocalID, tr core.Transform)
	SetVisible(id core.LocalID, visible bool)
	// Attach hangs a view-only copy of an item on a player.
	Attach(player core.LocalID, name, model string)
	Detach(player core.LocalID)
}

// NodeKind classifies a scene node.
type NodeKind uint8

const (
	NodeAvatar NodeKind = iota + 1
	NodeRemotePlayer
	NodeProjectile
	NodeItem
)

func (k NodeKind) String() string {
	switch k {
	case NodeAvatar:
		return "avatar"
	case NodeRemotePlayer:
		return "remote"
	case NodeProjectile:
		return "projectile"
	case NodeItem:
		return "item"
	default:
		return "unknown"
	}
}

// Attachment is an item hanging on a player node.
type Attachment struct {
	Name  string
	Model string
}

// Node is one object in a MemoryScene.
type Node struct {
	ID        core.LocalID
	Kind      NodeKind
	Transform core.Transform
	Visible   bool
	Name      string
	Model     string
	Attached  *Attachment
}

// MemoryScene is a Scene that only keeps state. It backs tests and the
// headless client.
type MemoryScene struct {
	nodes map[core.LocalID]*Node
	next  core.LocalID
}

var _ Scene = (*MemoryScene)(nil)

// NewMemoryScene returns an empty scene.
func NewMemoryScene() *MemoryScene {
	return &MemoryScene{nodes: make(map[core.LocalID]*Node)}
}

func (s *MemoryScene) spawn(kind NodeKind, pos core.Vec3) *Node {
	s.next++
	n := &Node{ID: s.next, Kind: kind, Transform: core.NewTransform(pos), Visible: true}
	s.nodes[n.ID] = n
	return n
}

func (s *MemoryScene) SpawnAvatar(pos core.Vec3) core.LocalID {
	return s.spawn(NodeAvatar, pos).ID
}

func (s *MemoryScene) SpawnRemotePlayer(pos core.Vec3) core.LocalID {
	return s.spawn(NodeRemotePlayer, pos).ID
}

func (s *MemoryScene) SpawnProjectile(pos core.Vec3) core.LocalID {
	return s.spawn(NodeProjectile, pos).ID
}

func (s *MemoryScene) SpawnItem(name, model string, pos core.Vec3) core.LocalID {
	n := s.spawn(NodeItem, pos)
	n.Name, n.Model = name, model
	return n.ID
}

func (s *MemoryScene) Despawn(id core.LocalID) {
	delete(s.nodes, id)
}

func (s *MemoryScene) SetTransform(id core.LocalID, tr core.Transform) {
	if n, ok := s.nodes[id]; ok {
		n.Transform = tr
	}
}

func (s *MemoryScene) SetVisible(id core.LocalID, visible bool) {
	if n, ok := s.nodes[id]; ok {
		n.Visible = visible
	}
}

func (s *MemoryScene) Attach(player core.LocalID, name, model string) {
	if n, ok := s.nodes[player]; ok {
		n.Attached = &Attachment{Name: name, Model: model}
	}
}

func (s *MemoryScene) Detach(player core.LocalID) {
	if n, ok := s.nodes[player]; ok {
		n.Attached = nil
	}
}

// Node returns a copy of the node behind id.
func (s *MemoryScene) Node(id core.LocalID) (Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Len returns the number of live nodes.
func (s *MemoryScene) Len() int { return len(s.nodes) }

// Nodes returns copies of every node of kind, in creation order.
func (s *MemoryScene) Nodes(kind NodeKind) []Node {
	var out []Node
	for _, n := range s.nodes {
		if n.Kind == kind {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
