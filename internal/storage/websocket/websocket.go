// Package websocket forwards the session journal to a remote collector as
// JSON envelopes over a WebSocket.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/streaming"
)

// Config holds collector connection settings. Zero fields get defaults.
type Config struct {
	URL          string
	Secret       string
	SendBuffer   int
	MaxReconnect int
	Backoff      time.Duration
	AckTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 10_000
	}
	if c.MaxReconnect <= 0 {
		c.MaxReconnect = 10
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	return c
}

// Backend streams journal events to a collector. Session start and end
// wait for an ack; every other record is fire-and-forget.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend. Nothing is dialed until Init.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Backend{
		conn: newConnection(cfg, logger),
		cfg:  cfg,
	}
}

// Init connects to the collector.
func (b *Backend) Init() error {
	return b.conn.dial()
}

// Close disconnects from the collector.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped returns the number of records lost to a full send buffer.
func (b *Backend) Dropped() uint64 {
	return b.conn.droppedCount()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends the session and waits for the collector's ack. The
// message is replayed after a reconnect.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.startMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, b.cfg.AckTimeout)
}

// EndSession sends end_session and waits for the collector's ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, b.cfg.AckTimeout)

	b.conn.mu.Lock()
	b.conn.startMsg = nil
	b.conn.mu.Unlock()
	return err
}

func (b *Backend) RecordConnection(e *core.ConnectionEvent) error {
	return b.sendEnvelope(streaming.TypeConnection, e)
}

func (b *Backend) RecordSpawn(e *core.SpawnEvent) error {
	return b.sendEnvelope(streaming.TypeSpawn, e)
}

func (b *Backend) RecordDespawn(e *core.DespawnEvent) error {
	return b.sendEnvelope(streaming.TypeDespawn, e)
}

func (b *Backend) RecordProjectile(e *core.ProjectileEvent) error {
	return b.sendEnvelope(streaming.TypeProjectile, e)
}

func (b *Backend) RecordEquip(e *core.EquipEvent) error {
	return b.sendEnvelope(streaming.TypeEquip, e)
}

// RecordPerformance implements storage.PerformanceRecorder.
func (b *Backend) RecordPerformance(s *core.PerformanceSample) error {
	return b.sendEnvelope(streaming.TypePerformance, s)
}
