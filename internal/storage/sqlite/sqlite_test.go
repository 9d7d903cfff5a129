package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)

func TestFileBackend_EndSessionDumps(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.db")

	b, err := New(Config{Path: filepath.Join(dir, "live.db"), DumpPath: dump}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartSession(&core.Session{ID: "9b2f0c5e-7a61-4e4b-8c39-0f3d2a1e5b77", StartedAt: time.Now()}))
	require.NoError(t, b.RecordConnection(&core.ConnectionEvent{Time: time.Now(), PlayerID: 1, Connected: true}))
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())

	info, err := os.Stat(dump)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestDump_NoPath(t *testing.T) {
	b, err := New(Config{Path: filepath.Join(t.TempDir(), "live.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.NoError(t, b.Dump())
}

func TestClose_Twice(t *testing.T) {
	b, err := New(Config{Path: filepath.Join(t.TempDir(), "live.db"), DumpPath: filepath.Join(t.TempDir(), "d.db"), DumpInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
