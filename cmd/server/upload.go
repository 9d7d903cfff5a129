package main

import (
	"time"

	"github.com/OCAP2/replication/internal/api"
	"github.com/OCAP2/replication/internal/config"
	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/pkg/core"
)

// exportedFile is implemented by backends that write the session to a file.
type exportedFile interface {
	GetExportedFilePath() string
}

// uploadExport sends the finished session file to the web frontend when one
// is configured. Failures are logged; the file stays on disk either way.
func uploadExport(backend storage.Backend, session *core.Session) {
	apiCfg := config.GetAPIConfig()
	if apiCfg.ServerURL == "" {
		return
	}
	exp, ok := backend.(exportedFile)
	if !ok || exp.GetExportedFilePath() == "" {
		return
	}
	path := exp.GetExportedFilePath()

	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(); err != nil {
		Logger.Warn("Web frontend unreachable, skipping upload", "error", err, "path", path)
		return
	}
	err := client.Upload(path, api.UploadMetadata{
		SessionID:   session.ID,
		SessionName: session.Name,
		Duration:    time.Since(session.StartedAt),
		Tag:         apiCfg.Tag,
	})
	if err != nil {
		Logger.Error("Failed to upload session export", "error", err, "path", path)
		return
	}
	Logger.Info("Session export uploaded", "path", path, "server", apiCfg.ServerURL)
}
