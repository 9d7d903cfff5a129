package protocol

import (
	"fmt"

	"github.com/OCAP2/replication/pkg/core"
)

// Kind is the wire tag of a message.
type Kind uint8

// Server to client kinds.
const (
	KindPlayerCreate Kind = iota + 1
	KindPlayerRemove
	KindSpawnProjectile
	KindDespawnProjectile
	KindSpawnItem
	KindDespawnItem
	KindEquipItem
	KindUnequipItem
	KindNetworkedEntities
)

// Client to server kinds.
const (
	KindMovementInput Kind = iota + 0x40
	KindRotationReport
	KindPositionReport
	KindInteract
	KindBasicAttack
	KindEquipRequest
	KindUnequipRequest
)

var kindNames = map[Kind]string{
	KindPlayerCreate:      "PlayerCreate",
	KindPlayerRemove:      "PlayerRemove",
	KindSpawnProjectile:   "SpawnProjectile",
	KindDespawnProjectile: "DespawnProjectile",
	KindSpawnItem:         "SpawnItem",
	KindDespawnItem:       "DespawnItem",
	KindEquipItem:         "EquipItem",
	KindUnequipItem:       "UnequipItem",
	KindNetworkedEntities: "NetworkedEntities",
	KindMovementInput:     "MovementInput",
	KindRotationReport:    "RotationReport",
	KindPositionReport:    "PositionReport",
	KindInteract:          "Interact",
	KindBasicAttack:       "BasicAttack",
	KindEquipRequest:      "EquipRequest",
	KindUnequipRequest:    "UnequipRequest",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(0x%02x)", uint8(k))
}

// ServerKinds lists every server to client kind.
func ServerKinds() []Kind {
	return []Kind{
		KindPlayerCreate, KindPlayerRemove, KindSpawnProjectile, KindDespawnProjectile,
		KindSpawnItem, KindDespawnItem, KindEquipItem, KindUnequipItem, KindNetworkedEntities,
	}
}

// ClientKinds lists every client to server kind.
func ClientKinds() []Kind {
	return []Kind{
		KindMovementInput, KindRotationReport, KindPositionReport, KindInteract,
		KindBasicAttack, KindEquipRequest, KindUnequipRequest,
	}
}

// Message is any wire message.
type Message interface {
	Kind() Kind
	Channel() Channel
}

// ServerMessage is the closed set of messages the server sends.
type ServerMessage interface {
	Message
	serverMessage()
}

// ClientMessage is the closed set of messages a client sends.
type ClientMessage interface {
	Message
	clientMessage()
}

// PlayerCreate announces a player avatar.
type PlayerCreate struct {
	ID          core.PlayerID
	Entity      core.EntityID
	Translation core.Vec3
}

// PlayerRemove announces a player leaving.
type PlayerRemove struct {
	ID core.PlayerID
}

// SpawnProjectile announces a projectile.
type SpawnProjectile struct {
	Entity      core.EntityID
	Translation core.Vec3
}

// DespawnProjectile announces a projectile being destroyed.
type DespawnProjectile struct {
	Entity core.EntityID
}

// SpawnItem announces a pickup-able item lying in the world.
type SpawnItem struct {
	Entity      core.EntityID
	Name        string
	Model       string
	Translation core.Vec3
}

// DespawnItem announces an item leaving the world.
type DespawnItem struct {
	Entity core.EntityID
}

// EquipItem announces a player picking up an item.
type EquipItem struct {
	PlayerID   core.PlayerID
	ItemEntity core.EntityID
	ItemName   string
	ItemModel  string
}

// UnequipItem announces a player dropping whatever it holds.
type UnequipItem struct {
	PlayerID core.PlayerID
}

// NetworkedEntities is a snapshot batch. The three slices are parallel and
// always the same length.
type NetworkedEntities struct {
	Entities     []core.EntityID
	Translations []core.Vec3
	Rotations    []core.Quat
}

// Len returns the number of entities in the batch.
func (n NetworkedEntities) Len() int { return len(n.Entities) }

// Append adds one entity to the batch.
func (n *NetworkedEntities) Append(id core.EntityID, tr core.Transform) {
	n.Entities = append(n.Entities, id)
	n.Translations = append(n.Translations, tr.Translation)
	n.Rotations = append(n.Rotations, tr.Rotation)
}

// MovementInput is the held movement keys.
type MovementInput struct {
	Up       bool
	Down     bool
	Left     bool
	Right    bool
	Interact bool
}

// RotationReport is the client's absolute avatar rotation.
type RotationReport struct {
	Rotation core.Quat
}

// PositionReport is the client's absolute avatar position.
type PositionReport struct {
	Translation core.Vec3
}

// Interact is a one-shot interaction trigger.
type Interact struct{}

// BasicAttack casts a projectile toward a world point.
type BasicAttack struct {
	CastAt core.Vec3
}

// EquipRequest asks to pick up a specific item.
type EquipRequest struct {
	ItemEntity core.EntityID
}

// UnequipRequest asks to drop the held item.
type UnequipRequest struct{}

func (PlayerCreate) Kind() Kind      { return KindPlayerCreate }
func (PlayerRemove) Kind() Kind      { return KindPlayerRemove }
func (SpawnProjectile) Kind() Kind   { return KindSpawnProjectile }
func (DespawnProjectile) Kind() Kind { return KindDespawnProjectile }
func (SpawnItem) Kind() Kind         { return KindSpawnItem }
func (DespawnItem) Kind() Kind       { return KindDespawnItem }
func (EquipItem) Kind() Kind         { return KindEquipItem }
func (UnequipItem) Kind() Kind       { return KindUnequipItem }
func (NetworkedEntities) Kind() Kind { return KindNetworkedEntities }
func (MovementInput) Kind() Kind     { return KindMovementInput }
func (RotationReport) Kind() Kind    { return KindRotationReport }
func (PositionReport) Kind() Kind    { return KindPositionReport }
func (Interact) Kind() Kind          { return KindInteract }
func (BasicAttack) Kind() Kind       { return KindBasicAttack }
func (EquipRequest) Kind() Kind      { return KindEquipRequest }
func (UnequipRequest) Kind() Kind    { return KindUnequipRequest }

func (PlayerCreate) Channel() Channel      { return ChannelEvents }
func (PlayerRemove) Channel() Channel      { return ChannelEvents }
func (SpawnProjectile) Channel() Channel   { return ChannelEvents }
func (DespawnProjectile) Channel() Channel { return ChannelEvents }
func (SpawnItem) Channel() Channel         { return ChannelEvents }
func (DespawnItem) Channel() Channel       { return ChannelEvents }
func (EquipItem) Channel() Channel         { return ChannelEvents }
func (UnequipItem) Channel() Channel       { return ChannelEvents }
func (NetworkedEntities) Channel() Channel { return ChannelSnapshot }
func (MovementInput) Channel() Channel     { return ChannelInput }
func (RotationReport) Channel() Channel    { return ChannelInput }
func (PositionReport) Channel() Channel    { return ChannelInput }
func (Interact) Channel() Channel          { return ChannelCommand }
func (BasicAttack) Channel() Channel       { return ChannelCommand }
func (EquipRequest) Channel() Channel      { return ChannelCommand }
func (UnequipRequest) Channel() Channel    { return ChannelCommand }

func (PlayerCreate) serverMessage()      {}
func (PlayerRemove) serverMessage()      {}
func (SpawnProjectile) serverMessage()   {}
func (DespawnProjectile) serverMessage() {}
func (SpawnItem) serverMessage()         {}
func (DespawnItem) serverMessage()       {}
func (EquipItem) serverMessage()         {}
func (UnequipItem) serverMessage()       {}
func (NetworkedEntities) serverMessage() {}

func (MovementInput) clientMessage()  {}
func (RotationReport) clientMessage() {}
func (PositionReport) clientMessage() {}
func (Interact) clientMessage()       {}
func (BasicAttack) clientMessage()    {}
func (EquipRequest) clientMessage()   {}
func (UnequipRequest) clientMessage() {}
