package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) log(level, msg string, keysAndValues []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, keysAndValues))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *testLogger) Warn(msg string, kv ...any)  { l.log("WARN", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func encode(t *testing.T, m protocol.ClientMessage) []byte {
	t.Helper()
	b, err := protocol.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got []Envelope
	d.Register(protocol.KindBasicAttack, func(e Envelope) error {
		got = append(got, e)
		return nil
	})

	payload := encode(t, protocol.BasicAttack{CastAt: core.Vec3{X: 5, Z: 5}})
	if err := d.DispatchRaw(7, protocol.ChannelCommand, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 call, got %d", len(got))
	}
	if got[0].Player != 7 || got[0].Channel != protocol.ChannelCommand {
		t.Errorf("unexpected envelope %+v", got[0])
	}
	attack, ok := got[0].Message.(protocol.BasicAttack)
	if !ok || attack.CastAt != (core.Vec3{X: 5, Z: 5}) {
		t.Errorf("unexpected message %#v", got[0].Message)
	}
	if got[0].Received.IsZero() {
		t.Error("expected receive time to be set")
	}
}

func TestDispatcher_NoHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := d.Dispatch(Envelope{Message: protocol.Interact{}})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
}

func TestDispatcher_MalformedDropped(t *testing.T) {
	d, logger := newTestDispatcher(t)

	called := 0
	d.Register(protocol.KindMovementInput, func(Envelope) error {
		called++
		return nil
	})

	payloads := [][]byte{
		{0xEE},
		nil,
		{byte(protocol.KindMovementInput), 1},
		encode(t, protocol.MovementInput{Up: true}),
	}
	var errs int
	for _, p := range payloads {
		if err := d.DispatchRaw(1, protocol.ChannelInput, p); err != nil {
			errs++
			if !errors.Is(err, protocol.ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		}
	}

	if errs != 3 {
		t.Errorf("expected 3 malformed payloads, got %d", errs)
	}
	if called != 1 {
		t.Errorf("expected the valid payload to still be handled, got %d calls", called)
	}
	if logger.count("WARN") != 3 {
		t.Errorf("expected 3 warnings, got %d", logger.count("WARN"))
	}
}

func TestDispatcher_WrongChannel(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(protocol.KindBasicAttack, func(Envelope) error {
		t.Error("handler must not run for a message on the wrong channel")
		return nil
	})

	err := d.DispatchRaw(1, protocol.ChannelInput, encode(t, protocol.BasicAttack{}))
	if !errors.Is(err, ErrWrongChannel) {
		t.Errorf("expected ErrWrongChannel, got %v", err)
	}
}

func TestDispatcher_Require(t *testing.T) {
	d, _ := newTestDispatcher(t)
	noop := func(Envelope) error { return nil }

	for _, k := range protocol.ClientKinds()[1:] {
		d.Register(k, noop)
	}
	err := d.Require(protocol.ClientKinds()...)
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
	if !strings.Contains(err.Error(), protocol.ClientKinds()[0].String()) {
		t.Errorf("expected missing kind in error, got %v", err)
	}

	d.Register(protocol.ClientKinds()[0], noop)
	if err := d.Require(protocol.ClientKinds()...); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(protocol.KindInteract, func(Envelope) error { return nil }, Logged())

	if err := d.Dispatch(Envelope{Message: protocol.Interact{}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if logger.count("DEBUG") < 2 {
		t.Errorf("expected at least 2 debug messages, got %d", logger.count("DEBUG"))
	}
}

func TestDispatcher_HandlerErrorDoesNotStopLaterMessages(t *testing.T) {
	d, logger := newTestDispatcher(t)

	calls := 0
	d.Register(protocol.KindInteract, func(Envelope) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("test error")
		}
		return nil
	})

	payload := encode(t, protocol.Interact{})
	if err := d.DispatchRaw(1, protocol.ChannelCommand, payload); err == nil {
		t.Error("expected the handler error to be returned")
	}
	if err := d.DispatchRaw(1, protocol.ChannelCommand, payload); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if logger.count("WARN") != 1 {
		t.Errorf("expected 1 warning, got %d", logger.count("WARN"))
	}
	if logger.count("ERROR") != 0 {
		t.Errorf("expected no error logs, got %d", logger.count("ERROR"))
	}
}

func TestDispatcher_LoggedHandlerErrorLoggedOnce(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(protocol.KindInteract, func(Envelope) error {
		return fmt.Errorf("out of reach")
	}, Logged())

	if err := d.DispatchRaw(1, protocol.ChannelCommand, encode(t, protocol.Interact{})); err == nil {
		t.Fatal("expected the handler error to be returned")
	}
	if logger.count("WARN") != 1 {
		t.Errorf("expected 1 warning, got %d", logger.count("WARN"))
	}
	if logger.count("ERROR") != 0 {
		t.Errorf("expected no error logs, got %d", logger.count("ERROR"))
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(protocol.KindInteract, func(Envelope) error { return nil })

	if !d.HasHandler(protocol.KindInteract) {
		t.Error("expected handler to exist")
	}
	if d.HasHandler(protocol.KindBasicAttack) {
		t.Error("expected handler to not exist")
	}
}
