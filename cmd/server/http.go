package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/OCAP2/replication/internal/server"
)

// maxBotsPerRequest bounds POST /bots.
const maxBotsPerRequest = 64

func newMux(e *server.Engine, ws http.Handler, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, e.Status())
	})
	mux.HandleFunc("POST /bots", func(w http.ResponseWriter, r *http.Request) {
		count := 1
		if v := r.URL.Query().Get("count"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxBotsPerRequest {
				http.Error(w, "count must be between 1 and 64", http.StatusBadRequest)
				return
			}
			count = n
		}
		e.Enqueue(func(e *server.Engine) {
			for i := 0; i < count; i++ {
				e.SpawnBot()
			}
		})
		writeJSON(w, http.StatusAccepted, map[string]int{"requested": count})
	})
	mux.HandleFunc("DELETE /bots", func(w http.ResponseWriter, _ *http.Request) {
		e.Enqueue(func(e *server.Engine) {
			n := e.RemoveBots()
			logger.Info("Bots removed", "count", n)
		})
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
