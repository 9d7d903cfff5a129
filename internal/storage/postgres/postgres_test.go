package postgres

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/OCAP2/replication/internal/model"
	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/pkg/core"
)

// Compile-time interface checks
var (
	_ storage.Backend             = (*Backend)(nil)
	_ storage.PerformanceRecorder = (*Backend)(nil)
)

func injectedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestNew(t *testing.T) {
	b := New(Dependencies{})
	require.NotNil(t, b)
	assert.NotNil(t, b.deps.Logger)
}

func TestClose_BeforeInit(t *testing.T) {
	assert.NoError(t, New(Dependencies{}).Close())
}

func TestInitClose_InjectedDB(t *testing.T) {
	db := injectedDB(t)
	b := New(Dependencies{DB: db})

	require.NoError(t, b.Init())
	assert.True(t, db.Migrator().HasTable(&model.Session{}))
	assert.True(t, db.Migrator().HasTable(&model.TickPerformance{}))
	require.NoError(t, b.Close())
}

func TestSession_InjectedDB(t *testing.T) {
	db := injectedDB(t)
	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartSession(&core.Session{ID: "3f1e2c44-2f7e-4f10-8a55-6c8d0e3a9b21", StartedAt: time.Now()}))
	require.NoError(t, b.RecordPerformance(&core.PerformanceSample{Time: time.Now(), Tick: 10, Players: 2}))
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())

	var perf []model.TickPerformance
	require.NoError(t, db.Find(&perf).Error)
	require.Len(t, perf, 1)
	assert.Equal(t, 2, perf[0].Players)
	assert.NotZero(t, perf[0].SessionID)
}
