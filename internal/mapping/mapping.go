// Package mapping translates server entity handles into a client's local
// entity handles.
package mapping

import (
	"errors"
	"fmt"

	"github.com/OCAP2/replication/pkg/core"
)

// ErrDuplicateRegistration means a server entity was registered twice. It is
// a protocol invariant violation, not a recoverable runtime condition.
var ErrDuplicateRegistration = errors.New("server entity already registered")

// Table is a bijective map from server entity to local entity.
//
// A Table is owned by the client tick loop and is not safe for concurrent
// use.
type Table struct {
	toLocal  map[core.EntityID]core.LocalID
	toServer map[core.LocalID]core.EntityID
}

// New returns an empty table.
func New() *Table {
	return &Table{
		toLocal:  make(map[core.EntityID]core.LocalID),
		toServer: make(map[core.LocalID]core.EntityID),
	}
}

// Register creates the local representation through spawn and records the
// mapping. spawn is not called when server is already registered.
func (t *Table) Register(server core.EntityID, spawn func() core.LocalID) (core.LocalID, error) {
	if prev, ok := t.toLocal[server]; ok {
		return prev, fmt.Errorf("register %s (mapped to %s): %w", server, prev, ErrDuplicateRegistration)
	}
	local := spawn()
	if other, ok := t.toServer[local]; ok {
		return local, fmt.Errorf("register %s: local %s already mirrors %s: %w", server, local, other, ErrDuplicateRegistration)
	}
	t.toLocal[server] = local
	t.toServer[local] = server
	return local, nil
}

// Resolve returns the local handle for server. A missing entry means the
// entity is not tracked, which is a normal state.
func (t *Table) Resolve(server core.EntityID) (core.LocalID, bool) {
	local, ok := t.toLocal[server]
	return local, ok
}

// ServerID is the reverse of Resolve.
func (t *Table) ServerID(local core.LocalID) (core.EntityID, bool) {
	server, ok := t.toServer[local]
	return server, ok
}

// Unregister removes and returns the mapping for server so the caller can
// destroy the local representation. Unregistering an absent key is a no-op.
func (t *Table) Unregister(server core.EntityID) (core.LocalID, bool) {
	local, ok := t.toLocal[server]
	if !ok {
		return 0, false
	}
	delete(t.toLocal, server)
	delete(t.toServer, local)
	return local, true
}

// Len returns the number of tracked entities.
func (t *Table) Len() int { return len(t.toLocal) }

// Each calls fn for every mapping in unspecified order.
func (t *Table) Each(fn func(server core.EntityID, local core.LocalID)) {
	for s, l := range t.toLocal {
		fn(s, l)
	}
}

// Reset discards every mapping.
func (t *Table) Reset() {
	t.toLocal = make(map[core.EntityID]core.LocalID)
	t.toServer = make(map[core.LocalID]core.EntityID)
}
