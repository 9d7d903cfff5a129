// Package lobby tracks which players are connected and which entity stands
// for each of them.
package lobby

import (
	"errors"
	"fmt"
	"slices"

	"github.com/OCAP2/replication/pkg/core"
)

// ErrPlayerExists is returned when a player is added twice.
var ErrPlayerExists = errors.New("player already in lobby")

// ServerLobby maps a connected player to its authoritative avatar. Absence
// means the player is not connected or not yet spawned.
type ServerLobby struct {
	players map[core.PlayerID]core.EntityID
}

// NewServerLobby returns an empty lobby.
func NewServerLobby() *ServerLobby {
	return &ServerLobby{players: make(map[core.PlayerID]core.EntityID)}
}

// Add records the avatar of id.
func (l *ServerLobby) Add(id core.PlayerID, entity core.EntityID) error {
	if prev, ok := l.players[id]; ok {
		return fmt.Errorf("player %d (entity %s): %w", id, prev, ErrPlayerExists)
	}
	l.players[id] = entity
	return nil
}

// Get returns the avatar of id.
func (l *ServerLobby) Get(id core.PlayerID) (core.EntityID, bool) {
	e, ok := l.players[id]
	return e, ok
}

// Remove drops id and returns its avatar. Removing an absent player is a no-op.
func (l *ServerLobby) Remove(id core.PlayerID) (core.EntityID, bool) {
	e, ok := l.players[id]
	if ok {
		delete(l.players, id)
	}
	return e, ok
}

// Len returns the number of players.
func (l *ServerLobby) Len() int { return len(l.players) }

// Players returns every player id in ascending order.
func (l *ServerLobby) Players() []core.PlayerID {
	return sortedKeys(l.players)
}

// PlayerInfo is a client's view of one player.
type PlayerInfo struct {
	ServerEntity core.EntityID
	ClientEntity core.LocalID
}

// ClientLobby maps every known player to its server and local entity.
type ClientLobby struct {
	players map[core.PlayerID]PlayerInfo
}

// NewClientLobby returns an empty lobby.
func NewClientLobby() *ClientLobby {
	return &ClientLobby{players: make(map[core.PlayerID]PlayerInfo)}
}

// Add records info for id.
func (l *ClientLobby) Add(id core.PlayerID, info PlayerInfo) error {
	if _, ok := l.players[id]; ok {
		return fmt.Errorf("player %d: %w", id, ErrPlayerExists)
	}
	l.players[id] = info
	return nil
}

// Get returns the info for id.
func (l *ClientLobby) Get(id core.PlayerID) (PlayerInfo, bool) {
	info, ok := l.players[id]
	return info, ok
}

// Remove drops id and returns its info.
func (l *ClientLobby) Remove(id core.PlayerID) (PlayerInfo, bool) {
	info, ok := l.players[id]
	if ok {
		delete(l.players, id)
	}
	return info, ok
}

// Len returns the number of players.
func (l *ClientLobby) Len() int { return len(l.players) }

// Players returns every player id in ascending order.
func (l *ClientLobby) Players() []core.PlayerID {
	return sortedKeys(l.players)
}

// Reset forgets every player.
func (l *ClientLobby) Reset() {
	l.players = make(map[core.PlayerID]PlayerInfo)
}

func sortedKeys[V any](m map[core.PlayerID]V) []core.PlayerID {
	ids := make([]core.PlayerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
