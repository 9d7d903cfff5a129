// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/replication/internal/config"
	v1 "github.com/OCAP2/replication/internal/storage/memory/export/v1"
	"github.com/OCAP2/replication/pkg/core"
)

// Backend keeps the session journal in memory and exports it to JSON when
// the session ends.
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	now     func() time.Time

	entities    map[core.EntityID]*v1.EntityRecord
	connections []core.ConnectionEvent
	equips      []core.EquipEvent
	projectiles []core.ProjectileEvent
	performance []core.PerformanceSample

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		now:      time.Now,
		entities: make(map[core.EntityID]*v1.EntityRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and discards anything
// recorded before.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.entities = make(map[core.EntityID]*v1.EntityRecord)
	b.connections = nil
	b.equips = nil
	b.projectiles = nil
	b.performance = nil
	return nil
}

// EndSession exports the session. With no OutputDir configured the data
// stays in memory only.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return fmt.Errorf("no session started")
	}
	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON(b.now())
}

func (b *Backend) RecordConnection(e *core.ConnectionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connections = append(b.connections, *e)
	return nil
}

// RecordSpawn registers an entity. A respawn of the same handle replaces
// the earlier record.
func (b *Backend) RecordSpawn(e *core.SpawnEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entities[e.Entity] = &v1.EntityRecord{Spawn: *e}
	return nil
}

// RecordDespawn closes an entity record. Unknown handles are ignored.
func (b *Backend) RecordDespawn(e *core.DespawnEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.entities[e.Entity]; ok {
		d := *e
		rec.Despawn = &d
	}
	return nil
}

func (b *Backend) RecordProjectile(e *core.ProjectileEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := *e
	p.Trajectory = append([]core.TrajectoryPoint(nil), e.Trajectory...)
	b.projectiles = append(b.projectiles, p)
	return nil
}

func (b *Backend) RecordEquip(e *core.EquipEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.equips = append(b.equips, *e)
	return nil
}

// RecordPerformance implements storage.PerformanceRecorder.
func (b *Backend) RecordPerformance(s *core.PerformanceSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.performance = append(b.performance, *s)
	return nil
}

// GetExportData returns a copy of everything recorded so far.
func (b *Backend) GetExportData() *v1.SessionData {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked(time.Time{})
}

// GetExportedFilePath returns the path of the last exported file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

func (b *Backend) snapshotLocked(endedAt time.Time) *v1.SessionData {
	entities := make(map[core.EntityID]*v1.EntityRecord, len(b.entities))
	for id, rec := range b.entities {
		cp := *rec
		entities[id] = &cp
	}
	return &v1.SessionData{
		Session:     b.session,
		EndedAt:     endedAt,
		Entities:    entities,
		Connections: append([]core.ConnectionEvent(nil), b.connections...),
		Equips:      append([]core.EquipEvent(nil), b.equips...),
		Projectiles: append([]core.ProjectileEvent(nil), b.projectiles...),
		Performance: append([]core.PerformanceSample(nil), b.performance...),
	}
}
