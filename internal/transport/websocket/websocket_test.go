package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replication/internal/transport"
	"github.com/OCAP2/replication/pkg/core"
	"github.com/OCAP2/replication/pkg/protocol"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(nil)
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		_ = s.Close()
		srv.Close()
	})
	return s, srv
}

// eventLog accumulates drained events across polls.
type eventLog struct {
	mu     sync.Mutex
	events []transport.ConnectionEvent
}

func (l *eventLog) poll(s *Server) []transport.ConnectionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s.Events()...)
	return append([]transport.ConnectionEvent(nil), l.events...)
}

func dial(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFrameRoundTrip(t *testing.T) {
	f := frame(protocol.ChannelSnapshot, []byte{1, 2, 3})
	ch, payload, err := unframe(f)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChannelSnapshot, ch)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	_, _, err = unframe(nil)
	assert.Error(t, err)
	_, _, err = unframe([]byte{42})
	assert.Error(t, err)

	id, err := parseHandshake(handshake(core.PlayerID(77)))
	require.NoError(t, err)
	assert.Equal(t, core.PlayerID(77), id)
	_, err = parseHandshake([]byte{handshakeTag, 1})
	assert.Error(t, err)
}

func TestConnectAssignsSequentialIDs(t *testing.T) {
	s, srv := testServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	assert.Equal(t, core.PlayerID(1), a.ID())
	assert.Equal(t, core.PlayerID(2), b.ID())

	log := &eventLog{}
	require.Eventually(t, func() bool { return len(log.poll(s)) == 2 }, 2*time.Second, 10*time.Millisecond)
	for _, ev := range log.poll(s) {
		assert.Equal(t, transport.Connected, ev.Type)
	}
	assert.Equal(t, 2, s.Connected())
}

func TestMessagesFlowBothWays(t *testing.T) {
	s, srv := testServer(t)
	c := dial(t, srv)

	require.NoError(t, c.Send(protocol.ChannelCommand, []byte{10}))
	require.NoError(t, c.Send(protocol.ChannelCommand, []byte{11}))

	var got [][]byte
	require.Eventually(t, func() bool {
		got = append(got, s.Receive(c.ID(), protocol.ChannelCommand)...)
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, [][]byte{{10}, {11}}, got)

	require.NoError(t, s.Send(c.ID(), protocol.ChannelEvents, []byte{1}))
	s.Broadcast(protocol.ChannelEvents, []byte{2})

	var recv [][]byte
	require.Eventually(t, func() bool {
		recv = append(recv, c.Receive(protocol.ChannelEvents)...)
		return len(recv) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, [][]byte{{1}, {2}}, recv)
}

func TestWrongDirectionFramesDropped(t *testing.T) {
	s, srv := testServer(t)
	c := dial(t, srv)

	// a client may not write on the server's events channel
	require.NoError(t, c.Send(protocol.ChannelEvents, []byte{1}))
	require.NoError(t, c.Send(protocol.ChannelCommand, []byte{2}))

	require.Eventually(t, func() bool {
		return len(s.Receive(c.ID(), protocol.ChannelCommand)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.Receive(c.ID(), protocol.ChannelEvents))
}

func TestClientCloseEmitsDisconnect(t *testing.T) {
	s, srv := testServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	log := &eventLog{}
	require.Eventually(t, func() bool { return len(log.poll(s)) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return len(log.poll(s)) == 3 }, 2*time.Second, 10*time.Millisecond)

	last := log.poll(s)[2]
	assert.Equal(t, a.ID(), last.Player)
	assert.Equal(t, transport.Disconnected, last.Type)
	assert.ErrorIs(t, s.Send(a.ID(), protocol.ChannelEvents, []byte{1}), transport.ErrNotConnected)

	// the other connection is unaffected
	require.NoError(t, s.Send(b.ID(), protocol.ChannelEvents, []byte{5}))
	require.Eventually(t, func() bool {
		return len(b.Receive(protocol.ChannelEvents)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, b.Err())
}

func TestServerDisconnect(t *testing.T) {
	s, srv := testServer(t)
	c := dial(t, srv)

	s.Disconnect(c.ID())
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not observe disconnect")
	}
	assert.Error(t, c.Err())
	assert.Error(t, c.Send(protocol.ChannelCommand, []byte{1}))
}
