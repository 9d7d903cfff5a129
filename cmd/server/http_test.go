package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replication/internal/config"
	"github.com/OCAP2/replication/internal/server"
	"github.com/OCAP2/replication/internal/transport/loopback"
)

func newTestMux(t *testing.T) (*server.Engine, http.Handler) {
	t.Helper()
	hub := loopback.NewHub(loopback.Options{})
	e, err := server.New(server.DefaultConfig(), hub)
	require.NoError(t, err)
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return e, newMux(e, ws, slog.Default())
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestMux_Healthz(t *testing.T) {
	_, h := newTestMux(t)
	rec := do(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestMux_WebSocketRoute(t *testing.T) {
	_, h := newTestMux(t)
	assert.Equal(t, http.StatusTeapot, do(h, http.MethodGet, "/ws").Code)
}

func TestMux_BotsLifecycle(t *testing.T) {
	e, h := newTestMux(t)

	rec := do(h, http.MethodPost, "/bots?count=3")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, e.Tick(16*time.Millisecond))

	rec = do(h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var st server.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Bots)
	assert.Equal(t, 3, st.Players)

	require.Equal(t, http.StatusAccepted, do(h, http.MethodDelete, "/bots").Code)
	require.NoError(t, e.Tick(16*time.Millisecond))
	assert.Equal(t, 0, e.Status().Bots)
}

func TestMux_BotsBadCount(t *testing.T) {
	_, h := newTestMux(t)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/bots?count=0").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/bots?count=abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/bots?count=1000").Code)
}

func TestMux_MethodNotAllowed(t *testing.T) {
	_, h := newTestMux(t)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPut, "/bots").Code)
}

func TestEngineConfig(t *testing.T) {
	cfg := engineConfig(config.ServerConfig{
		SyncInterval: 50 * time.Millisecond,
		Items: []config.ItemConfig{
			{Name: "Sword", Model: "sword.glb", Position: [3]float32{1, 0, 2}},
		},
	})
	assert.Equal(t, 50*time.Millisecond, cfg.SyncInterval)
	require.Len(t, cfg.Items, 1)
	assert.Equal(t, "Sword", cfg.Items[0].Name)
	assert.Equal(t, float32(2), cfg.Items[0].Position.Z)
	assert.Equal(t, server.DefaultConfig().MoveSpeed, cfg.MoveSpeed)
}
