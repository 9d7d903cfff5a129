// Package server is the authoritative replication engine. One Engine owns
// the world, the lobby and the per-connection state machine, and is driven
// by a single fixed-rate tick loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/OCAP2/replication/internal/dispatcher"
	"github.com/OCAP2/replication/internal/lobby"
	"github.com/OCAP2/replication/internal/queue"
	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/internal/world"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

var (
	// ErrNotSpawned is returned for messages from a player without an avatar.
	ErrNotSpawned = errors.New("player has no avatar")
	// ErrItemUnavailable is returned for equip requests that cannot be met.
	ErrItemUnavailable = errors.New("item unavailable")
)

// ConnState is the lifecycle state of one connection.
type ConnState uint8

const (
	StateUnknown ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Bot player ids live far above anything a transport hands out.
const botIDBase core.PlayerID = 1 << 62

// IsBot reports whether id belongs to a server-side bot.
func IsBot(id core.PlayerID) bool { return id >= botIDBase }

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStorage journals sessions to b. The engine does not call Init or
// Close on b.
func WithStorage(b storage.Backend) Option {
	return func(e *Engine) { e.journal = b }
}

// WithRand sets the random source used for bot placement.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithClock sets the wall clock used for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the server replication engine. All methods except Status,
// Enqueue and Run must be called from the goroutine that drives Tick.
type Engine struct {
	cfg      Config
	tr       transport.Server
	world    *world.World
	lobby    *lobby.ServerLobby
	dispatch *dispatcher.Dispatcher
	journal  storage.Backend
	logger   *slog.Logger
	rng      *rand.Rand
	now      func() time.Time

	conns     map[core.PlayerID]ConnState
	departed  []core.PlayerID
	flights   map[core.EntityID]*core.ProjectileEvent
	pending   *queue.Queue[func(*Engine)]
	tick      uint64
	syncTimer time.Duration
	nextBot   core.PlayerID
	snapshots uint64

	status atomic.Pointer[Status]
}

// New builds an engine over tr and places the configured items.
func New(cfg Config, tr transport.Server, opts ...Option) (*Engine, error) {
	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive, got %s", cfg.SyncInterval)
	}
	e := &Engine{
		cfg:     cfg,
		tr:      tr,
		world:   world.New(),
		lobby:   lobby.NewServerLobby(),
		logger:  slog.Default(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		conns:   make(map[core.PlayerID]ConnState),
		flights: make(map[core.EntityID]*core.ProjectileEvent),
		pending: queue.New[func(*Engine)](),
	}
	for _, opt := range opts {
		opt(e)
	}

	d, err := dispatcher.New(e.logger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	e.dispatch = d
	e.registerHandlers()
	if err := d.Require(protocol.ClientKinds()...); err != nil {
		return nil, fmt.Errorf("unhandled client messages: %w", err)
	}

	if err := e.registerMetrics(); err != nil {
		return nil, err
	}

	for _, it := range cfg.Items {
		e.SpawnItem(it)
	}
	e.publishStatus(0)
	return e, nil
}

// Tick advances the engine by dt: connection events, inbound messages,
// simulation, removal notifications, then the snapshot timer. Per-message
// failures are logged and never abort the tick; only structural invariant
// violations are returned.
func (e *Engine) Tick(dt time.Duration) error {
	start := time.Now()
	e.tick++

	for _, p := range e.departed {
		delete(e.conns, p)
	}
	e.departed = e.departed[:0]

	for _, fn := range e.pending.Drain() {
		fn(e)
	}

	var errs []error
	for _, ev := range e.tr.Events() {
		switch ev.Type {
		case transport.Connected:
			if err := e.handleConnect(ev.Player); err != nil {
				errs = append(errs, err)
			}
		case transport.Disconnected:
			e.handleDisconnect(ev.Player, ev.Reason)
		}
	}

	e.receive()

	e.world.Step(dt, e.cfg.MoveSpeed)
	e.autocast(dt)
	e.flushRemovals()

	e.syncTimer += dt
	if e.syncTimer >= e.cfg.SyncInterval {
		e.syncTimer %= e.cfg.SyncInterval
		e.broadcastSnapshot()
	}

	e.publishStatus(time.Since(start))
	return errors.Join(errs...)
}

// receive drains every connected player's client channels. Connections are
// visited in player order so processing is deterministic.
func (e *Engine) receive() {
	for _, p := range e.lobby.Players() {
		if e.conns[p] != StateConnected {
			continue
		}
		for _, ch := range [...]protocol.Channel{protocol.ChannelCommand, protocol.ChannelInput} {
			for _, payload := range e.tr.Receive(p, ch) {
				// failures are logged by the dispatcher
				_ = e.dispatch.DispatchRaw(p, ch, payload)
			}
		}
	}
}

// Run ticks at a fixed rate until ctx is cancelled or a tick fails.
func (e *Engine) Run(ctx context.Context, rate time.Duration) error {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.Tick(rate); err != nil {
				return fmt.Errorf("tick %d: %w", e.tick, err)
			}
		}
	}
}

// Enqueue schedules fn to run on the tick goroutine at the start of the
// next tick. It is safe to call from any goroutine.
func (e *Engine) Enqueue(fn func(*Engine)) {
	e.pending.Push(fn)
}

// State returns the connection state of player. A player that left reports
// StateDisconnected until the start of the next tick and StateUnknown after.
func (e *Engine) State(player core.PlayerID) ConnState {
	return e.conns[player]
}

// Avatar returns the authoritative entity of player.
func (e *Engine) Avatar(player core.PlayerID) (*world.Entity, bool) {
	id, ok := e.lobby.Get(player)
	if !ok {
		return nil, false
	}
	return e.world.Get(id)
}

// World exposes the authoritative world for inspection.
func (e *Engine) World() *world.World { return e.world }

// send writes m to one player. Send failures mean the player is going away;
// its Disconnected event cleans up.
func (e *Engine) send(player core.PlayerID, m protocol.ServerMessage) {
	b, err := protocol.Marshal(m)
	if err != nil {
		e.logger.Error("encode failed", "kind", m.Kind().String(), "error", err)
		return
	}
	if err := e.tr.Send(player, m.Channel(), b); err != nil {
		e.logger.Debug("send failed", "player", uint64(player), "kind", m.Kind().String(), "error", err)
	}
}

// broadcast writes m to every connected player. Connections the engine has
// not caught up yet are skipped: their catch-up already carries the state
// m describes.
func (e *Engine) broadcast(m protocol.ServerMessage) {
	b, err := protocol.Marshal(m)
	if err != nil {
		e.logger.Error("encode failed", "kind", m.Kind().String(), "error", err)
		return
	}
	for _, p := range e.lobby.Players() {
		if IsBot(p) || e.conns[p] != StateConnected {
			continue
		}
		if err := e.tr.Send(p, m.Channel(), b); err != nil {
			e.logger.Debug("send failed", "player", uint64(p), "kind", m.Kind().String(), "error", err)
		}
	}
}

// record journals an event when storage is configured.
func (e *Engine) record(fn func(storage.Backend) error) {
	if e.journal == nil {
		return
	}
	if err := fn(e.journal); err != nil {
		e.logger.Debug("journal write failed", "error", err)
	}
}
