// Package dispatcher routes decoded client messages to per-kind handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// ErrNoHandler is returned for a message kind nobody registered.
var ErrNoHandler = errors.New("no handler registered")

// ErrWrongChannel is returned when a message arrives on a channel other
// than the one its kind travels on.
var ErrWrongChannel = errors.New("message on wrong channel")

// Envelope is one inbound client message.
type Envelope struct {
	Player   core.PlayerID
	Channel  protocol.Channel
	Message  protocol.ClientMessage
	Received time.Time
}

// HandlerFunc processes a message. A returned error means the message was
// rejected: it is logged as a warning and counted, and never stops
// processing of later messages.
type HandlerFunc func(Envelope) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes messages to registered handlers. It runs on the tick
// loop and is not safe for concurrent use.
type Dispatcher struct {
	handlers map[protocol.Kind]HandlerFunc
	logger   Logger
	now      func() time.Time

	processed metric.Int64Counter
	malformed metric.Int64Counter
	failed    metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[protocol.Kind]HandlerFunc),
		logger:   logger,
		now:      time.Now,
	}

	m := meter()

	var err error

	d.processed, err = m.Int64Counter(
		"dispatcher.messages.processed",
		metric.WithDescription("Total client messages handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.malformed, err = m.Int64Counter(
		"dispatcher.messages.malformed",
		metric.WithDescription("Total client payloads dropped because they did not decode"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating malformed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.messages.failed",
		metric.WithDescription("Total client messages whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given kind with optional configuration.
// A later registration for the same kind replaces the earlier one.
func (d *Dispatcher) Register(kind protocol.Kind, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(kind, handler)
	}
	d.handlers[kind] = handler
}

// HasHandler returns true if a handler is registered for kind.
func (d *Dispatcher) HasHandler(kind protocol.Kind) bool {
	_, ok := d.handlers[kind]
	return ok
}

// Require returns an error naming every kind without a handler. Callers
// check the full client kind set at startup so a new message kind cannot
// go silently unhandled.
func (d *Dispatcher) Require(kinds ...protocol.Kind) error {
	var missing []error
	for _, k := range kinds {
		if !d.HasHandler(k) {
			missing = append(missing, fmt.Errorf("%s: %w", k, ErrNoHandler))
		}
	}
	return errors.Join(missing...)
}

// Dispatch routes an envelope to its registered handler.
func (d *Dispatcher) Dispatch(e Envelope) error {
	kind := e.Message.Kind()
	h, ok := d.handlers[kind]
	if !ok {
		return fmt.Errorf("%s: %w", kind, ErrNoHandler)
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind.String()))
	if err := h(e); err != nil {
		d.failed.Add(context.Background(), 1, attrs)
		return err
	}
	d.processed.Add(context.Background(), 1, attrs)
	return nil
}

// DispatchRaw decodes payload and dispatches it. Malformed payloads and
// messages on the wrong channel are dropped and logged; the returned error
// is informational and callers continue with the next payload.
func (d *Dispatcher) DispatchRaw(player core.PlayerID, ch protocol.Channel, payload []byte) error {
	msg, err := protocol.DecodeClient(payload)
	if err != nil {
		d.malformed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("channel", ch.String())))
		d.logger.Warn("dropping malformed message",
			"player", uint64(player), "channel", ch.String(), "size", len(payload), "error", err)
		return err
	}
	if msg.Channel() != ch {
		d.malformed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("channel", ch.String())))
		d.logger.Warn("dropping message on wrong channel",
			"player", uint64(player), "kind", msg.Kind().String(), "channel", ch.String())
		return fmt.Errorf("%s on %s: %w", msg.Kind(), ch, ErrWrongChannel)
	}

	err = d.Dispatch(Envelope{Player: player, Channel: ch, Message: msg, Received: d.now()})
	if err != nil {
		d.logger.Warn("message rejected", "player", uint64(player), "kind", msg.Kind().String(), "error", err)
	}
	return err
}

func (d *Dispatcher) withLogging(kind protocol.Kind, h HandlerFunc) HandlerFunc {
	return func(e Envelope) error {
		start := time.Now()
		d.logger.Debug("handling message", "kind", kind.String(), "player", uint64(e.Player))

		err := h(e)

		d.logger.Debug("message complete", "kind", kind.String(), "duration", time.Since(start), "failed", err != nil)

		return err
	}
}
