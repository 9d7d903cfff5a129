// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine. The postgres
// and sqlite backends wrap it.
package gormstorage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/OCAP2/replication/internal/database"
	"github.com/OCAP2/replication/internal/model"
	"github.com/OCAP2/replication/internal/model/convert"
	"github.com/OCAP2/replication/internal/queue"
	"github.com/OCAP2/replication/pkg/core"
)

// DefaultWriteInterval is how often queued rows are written.
const DefaultWriteInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB may be nil, in which case rows are only queued.
	DB            *gorm.DB
	Logger        *slog.Logger
	WriteInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Connections *queue.Queue[model.Connection]
	Spawns      *queue.Queue[model.Spawn]
	Despawns    *queue.Queue[model.Despawn]
	Projectiles *queue.Queue[model.Projectile]
	Equips      *queue.Queue[model.Equip]
	Performance *queue.Queue[model.TickPerformance]
}

func newQueues() *queues {
	return &queues{
		Connections: queue.New[model.Connection](),
		Spawns:      queue.New[model.Spawn](),
		Despawns:    queue.New[model.Despawn](),
		Projectiles: queue.New[model.Projectile](),
		Equips:      queue.New[model.Equip](),
		Performance: queue.New[model.TickPerformance](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	stopChan  chan struct{}
	done      chan struct{}
	flushMu   sync.Mutex
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps: deps,
	}
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates internal queues, runs schema migration, and starts the DB
// writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		close(b.done)
		return nil
	}

	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		close(b.done)
		return err
	}

	go b.writeLoop()
	return nil
}

// Close stops the writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		close(b.stopChan)
	})
	<-b.done
	b.Flush()
	return nil
}

// StartSession inserts the session row synchronously so later rows can
// reference it.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	b.sessionID.Store(uint64(row.ID))
	b.deps.Logger.Info("Session started", "session", s.ID, "rowId", row.ID)
	return nil
}

// SetSessionID sets the current session row for the writer (used by tests
// and tools resuming an existing session).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// EndSession writes pending rows and stamps the session end time.
func (b *Backend) EndSession() error {
	if b.deps.DB == nil {
		return nil
	}
	b.Flush()
	id := uint(b.sessionID.Load())
	if id == 0 {
		return fmt.Errorf("no session started")
	}
	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).
		Update("ended_at", sql.NullTime{Time: time.Now(), Valid: true}).Error
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// RecordConnection converts and queues a connection event.
func (b *Backend) RecordConnection(e *core.ConnectionEvent) error {
	b.queues.Connections.Push(convert.CoreToConnection(*e))
	return nil
}

// RecordSpawn converts and queues a spawn.
func (b *Backend) RecordSpawn(e *core.SpawnEvent) error {
	b.queues.Spawns.Push(convert.CoreToSpawn(*e))
	return nil
}

// RecordDespawn converts and queues a despawn.
func (b *Backend) RecordDespawn(e *core.DespawnEvent) error {
	b.queues.Despawns.Push(convert.CoreToDespawn(*e))
	return nil
}

// RecordProjectile converts and queues a finished projectile.
func (b *Backend) RecordProjectile(e *core.ProjectileEvent) error {
	b.queues.Projectiles.Push(convert.CoreToProjectile(*e))
	return nil
}

// RecordEquip converts and queues an equip change.
func (b *Backend) RecordEquip(e *core.EquipEvent) error {
	b.queues.Equips.Push(convert.CoreToEquip(*e))
	return nil
}

// RecordPerformance implements storage.PerformanceRecorder.
func (b *Backend) RecordPerformance(s *core.PerformanceSample) error {
	b.queues.Performance.Push(model.TickPerformance{
		Time:        s.Time,
		Tick:        s.Tick,
		Connections: s.Connections,
		Bots:        s.Bots,
		Players:     s.Players,
		Projectiles: s.Projectiles,
		Items:       s.Items,
		TickMs:      float32(s.TickDuration) / float32(time.Millisecond),
	})
	return nil
}

// writeQueue writes all items from a queue to the database in a
// transaction. Failed batches go back on the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger, prepare func([]T)) {
	if q.Empty() {
		return
	}

	items := q.Drain()
	if prepare != nil {
		prepare(items)
	}
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Push(items...)
		return
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing rows", "table", name, "error", err)
		q.Push(items...)
	}
}

// Flush writes every queue once. Nothing is written before a session row
// exists.
func (b *Backend) Flush() {
	if b.deps.DB == nil {
		return
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	id := uint(b.sessionID.Load())
	if id == 0 {
		return
	}
	db, log := b.deps.DB, b.deps.Logger

	writeQueue(db, b.queues.Connections, "connections", log, func(items []model.Connection) {
		for i := range items {
			items[i].SessionID = id
		}
	})
	writeQueue(db, b.queues.Spawns, "spawns", log, func(items []model.Spawn) {
		for i := range items {
			items[i].SessionID = id
		}
	})
	writeQueue(db, b.queues.Despawns, "despawns", log, func(items []model.Despawn) {
		for i := range items {
			items[i].SessionID = id
		}
	})
	writeQueue(db, b.queues.Projectiles, "projectiles", log, func(items []model.Projectile) {
		for i := range items {
			items[i].SessionID = id
		}
	})
	writeQueue(db, b.queues.Equips, "equips", log, func(items []model.Equip) {
		for i := range items {
			items[i].SessionID = id
		}
	})
	writeQueue(db, b.queues.Performance, "tick performance", log, func(items []model.TickPerformance) {
		for i := range items {
			items[i].SessionID = id
		}
	})
}

// writeLoop periodically drains the queues into the DB until Close.
func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
