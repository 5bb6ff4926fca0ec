package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// VaultProbe reports whether the vault is serving normally, with a reason
// when it is not (paused, invariant failure).
type VaultProbe func() (healthy bool, message string)

// HealthChecker manages liveness and readiness state.
// Serves /healthz (liveness) and /readyz (readiness).
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu    sync.RWMutex
	probe VaultProbe
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady marks the service as ready to accept traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// SetProbe installs the vault probe consulted by the readiness handler.
func (h *HealthChecker) SetProbe(p VaultProbe) {
	h.mu.Lock()
	h.probe = p
	h.mu.Unlock()
}

// LivenessHandler always returns 200 while the process runs.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns 200 once startup finished and the vault probe
// reports healthy, 503 otherwise. A paused vault is not ready.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}

	h.mu.RLock()
	probe := h.probe
	h.mu.RUnlock()

	if probe != nil {
		if healthy, msg := probe(); !healthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"vault":  msg,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
