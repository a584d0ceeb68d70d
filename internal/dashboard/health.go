package dashboard

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	GoVersion    string `json:"go_version"`
	Uptime       int64  `json:"uptime_ms"`
	NumGoroutine int    `json:"num_goroutines"`
	MemoryMB     uint64 `json:"memory_mb"`
}

type healthHandler struct {
	hub *Hub
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, HealthResponse{
		Status:       "ok",
		Version:      h.hub.opts.Version,
		GoVersion:    runtime.Version(),
		Uptime:       time.Since(h.hub.startTime).Milliseconds(),
		NumGoroutine: runtime.NumGoroutine(),
		MemoryMB:     memStats.Alloc / 1024 / 1024,
	})
}

type statsHandler struct {
	hub *Hub
}

func (h *statsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.hub.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
