// health.go — liveness и readiness endpoints для оркестратора.
package handlers

import (
	"net/http"
	"sync/atomic"
)

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	ready atomic.Bool
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// SetReady помечает сервис готовым (после инициализации драйвера).
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// HealthLive обрабатывает GET /health/live.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady обрабатывает GET /health/ready.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
