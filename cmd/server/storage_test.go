package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replication/internal/config"
	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/internal/storage/memory"
	pgstorage "github.com/OCAP2/replication/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/replication/internal/storage/sqlite"
	wsstorage "github.com/OCAP2/replication/internal/storage/websocket"
)

func TestCreateStorageBackend(t *testing.T) {
	logger := slog.Default()

	b, err := createStorageBackend(config.StorageConfig{Type: "none"}, logger)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "memory"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)
	_, ok := b.(storage.PerformanceRecorder)
	assert.True(t, ok)

	b, err = createStorageBackend(config.StorageConfig{Type: "postgres"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &pgstorage.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{DumpPath: t.TempDir() + "/dump.db"},
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)
	require.NoError(t, b.Close())

	b, err = createStorageBackend(config.StorageConfig{
		Type:      "websocket",
		WebSocket: config.WebSocketConfig{URL: "http://collector:5000"},
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &wsstorage.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "websocket"}, logger)
	assert.Error(t, err)

	_, err = createStorageBackend(config.StorageConfig{Type: "mongodb"}, logger)
	assert.Error(t, err)
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "ws://localhost:5000", httpToWS("http://localhost:5000/"))
	assert.Equal(t, "wss://example.com/api", httpToWS("https://example.com/api"))
	assert.Equal(t, "ws://already", httpToWS("ws://already"))
}
