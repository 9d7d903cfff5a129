package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/OCAP2/replication/internal/config"
	"github.com/OCAP2/replication/internal/logging"
	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/internal/storage/memory"
	pgstorage "github.com/OCAP2/replication/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/replication/internal/storage/sqlite"
	wsstorage "github.com/OCAP2/replication/internal/storage/websocket"
)

// createStorageBackend builds the journal selected by storage.type. A nil
// backend with a nil error means journaling is off.
func createStorageBackend(storageCfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "", "none":
		logger.Info("Session journal disabled")
		return nil, nil

	case "memory":
		logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	case "postgres":
		logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{Logger: logger}), nil

	case "sqlite":
		dumpPath := storageCfg.SQLite.DumpPath
		if dumpPath == "" && storageCfg.SQLite.Path == "" {
			// in-memory database, keep a copy on disk
			dumpPath = strings.TrimSuffix(logging.LogFilePath(".", ServiceName, SessionStartTime), ".log") + ".db"
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         storageCfg.SQLite.Path,
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path, "dumpPath", dumpPath)
		return backend, nil

	case "websocket":
		if storageCfg.WebSocket.URL == "" {
			return nil, fmt.Errorf("storage.websocket.url is required")
		}
		wsURL := httpToWS(storageCfg.WebSocket.URL)
		logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: storageCfg.WebSocket.Secret,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
