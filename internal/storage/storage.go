// internal/storage/storage.go
package storage

import "github.com/OCAP2/replication/pkg/core"

// Backend is the interface all journal implementations must satisfy.
// Record methods are called from the server tick loop and must not block
// on I/O; implementations queue and write in the background.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Event recording
	RecordConnection(e *core.ConnectionEvent) error
	RecordSpawn(e *core.SpawnEvent) error
	RecordDespawn(e *core.DespawnEvent) error
	RecordProjectile(e *core.ProjectileEvent) error
	RecordEquip(e *core.EquipEvent) error
}

// PerformanceRecorder is implemented by backends that also keep periodic
// status samples.
type PerformanceRecorder interface {
	RecordPerformance(s *core.PerformanceSample) error
}
