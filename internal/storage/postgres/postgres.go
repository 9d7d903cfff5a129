// Package postgres implements the storage.Backend interface on PostgreSQL.
// Rows are queued and written by the embedded GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/OCAP2/replication/internal/database"
	gormstorage "github.com/OCAP2/replication/internal/storage/gorm"
)

// MaxOpenConns caps the connection pool.
const MaxOpenConns = 10

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	// DB overrides the connection built from the db.* config keys.
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend implements storage.Backend on PostgreSQL.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// Init connects (unless a DB was injected), validates the connection,
// then initializes the embedded GORM backend.
func (b *Backend) Init() error {
	db := b.deps.DB
	if db == nil {
		var err error
		db, err = database.OpenPostgres()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(MaxOpenConns)
		b.deps.Logger.Info("Connected to database", "dialect", db.Name())
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:     db,
		Logger: b.deps.Logger,
	})
	return b.Backend.Init()
}

// Close closes the embedded backend. Safe to call when Init failed.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
