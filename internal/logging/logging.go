// Package logging sets up the structured loggers: slog with optional OTel
// export for the server, zerolog for the headless client, and rotating log
// files for both.
package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/OCAP2/replication/internal/config"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// NewRotatingFile returns a size-rotated log file under cfg.Dir, or nil
// when no directory is configured.
func NewRotatingFile(cfg config.LoggingConfig, name string, sessionStart time.Time) io.WriteCloser {
	if cfg.Dir == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   LogFilePath(cfg.Dir, name, sessionStart),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

// NewGraylogWriter returns a GELF UDP writer for addr (host:port), or nil
// when addr is empty.
func NewGraylogWriter(addr, facility string) (io.WriteCloser, error) {
	if addr == "" {
		return nil, nil
	}
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to graylog at %s: %w", addr, err)
	}
	w.Facility = facility
	return w, nil
}
