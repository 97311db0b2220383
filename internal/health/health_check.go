// Package health provides liveness and readiness handlers.
package health

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/tempusgeo/TempusGeo-Server/internal/storage/disk"
	"go.uber.org/zap"
)

// HealthCheck reports process liveness and store readiness.
type HealthCheck struct {
	disk   *disk.Store
	logger *zap.Logger
	ready  atomic.Bool
}

// NewHealthCheck creates a new health check.
func NewHealthCheck(diskStore *disk.Store, logger *zap.Logger) *HealthCheck {
	return &HealthCheck{disk: diskStore, logger: logger}
}

// SetReady marks the store ready. Called after reconciliation and warmup.
func (h *HealthCheck) SetReady() {
	h.ready.Store(true)
}

// LivenessHandler handles GET /health requests.
func (h *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ReadinessHandler handles GET /ready requests. Ready means reconciliation
// has completed and the data directory is writable.
func (h *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{
			"status": "starting",
		})
		return
	}

	probe := filepath.Join(h.disk.DataDir(), ".health")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		h.logger.Error("data directory not writable", zap.Error(err))
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{
			"status": "error",
			"error":  "data directory not writable",
		})
		return
	}
	os.Remove(probe)

	writeStatus(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"last_write_time": h.disk.LastWriteTime(),
	})
}

func writeStatus(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
