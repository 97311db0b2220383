package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	apierrors "github.com/tempusgeo/TempusGeo-Server/internal/errors"
	"github.com/tempusgeo/TempusGeo-Server/internal/service"
	"go.uber.org/zap"
)

// AdminHandlers contains the super-admin HTTP handlers.
type AdminHandlers struct {
	store        *service.StoreService
	retention    *service.RetentionService
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance.
func NewAdminHandlers(store *service.StoreService, retention *service.RetentionService, errorHandler *apierrors.Handler, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{
		store:        store,
		retention:    retention,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// ListTenants handles GET /v1/admin/tenants requests.
func (h *AdminHandlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants := h.store.ListTenants()

	out := make([]map[string]any, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, map[string]any{
			"id":                  t.ID,
			"name":                t.Name,
			"email":               t.Email,
			"subscription_expiry": t.SubscriptionExpiry,
			"payments":            t.Payments,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tenants": out})
}

type adjustTenantRequest struct {
	Name               string     `json:"name,omitempty"`
	Email              string     `json:"email,omitempty"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry,omitempty"`
}

// AdjustTenant handles PUT /v1/admin/tenants/{tenant_id} requests.
func (h *AdminHandlers) AdjustTenant(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	tenantID := mux.Vars(r)["tenant_id"]

	var req adjustTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	tenant, err := h.store.AdminAdjust(tenantID, req.Name, req.Email, req.SubscriptionExpiry)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tenant": map[string]any{
			"id":                  tenant.ID,
			"name":                tenant.Name,
			"email":               tenant.Email,
			"subscription_expiry": tenant.SubscriptionExpiry,
		},
	})
}

// DeleteTenant handles DELETE /v1/admin/tenants/{tenant_id} requests.
func (h *AdminHandlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	if err := h.store.DeleteTenant(tenantID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type extendSubscriptionRequest struct {
	Months int     `json:"months"`
	Amount float64 `json:"amount"`
}

// ExtendSubscription handles POST /v1/admin/tenants/{tenant_id}/payments
// requests, recording a payment and extending the subscription.
func (h *AdminHandlers) ExtendSubscription(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	tenantID := mux.Vars(r)["tenant_id"]

	var req extendSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Months <= 0 {
		h.errorHandler.WriteValidationError(w, "months must be a positive integer", requestID)
		return
	}

	tenant, err := h.store.ExtendSubscription(tenantID, req.Months, req.Amount)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tenant": map[string]any{
			"id":                  tenant.ID,
			"subscription_expiry": tenant.SubscriptionExpiry,
			"payments":            tenant.Payments,
		},
	})
}

// GetSystemConfig handles GET /v1/admin/system-config requests.
func (h *AdminHandlers) GetSystemConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.SystemConfig())
}

type updateSystemConfigRequest struct {
	Settings map[string]any `json:"settings"`
}

// UpdateSystemConfig handles PUT /v1/admin/system-config requests.
func (h *AdminHandlers) UpdateSystemConfig(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req updateSystemConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Settings == nil {
		h.errorHandler.WriteValidationError(w, "settings object is required", requestID)
		return
	}

	cfg, err := h.store.UpdateSystemConfig(req.Settings)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// Snapshot handles GET /v1/admin/snapshot requests. The archival service
// pulls a full copy of the local tree through this endpoint.
func (h *AdminHandlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	snap, err := h.store.Snapshot()
	if err != nil {
		h.errorHandler.WriteInternalError(w, err.Error(), requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"files":    snap.Files,
			"metadata": map[string]any{"lastWriteTime": snap.LastWriteTime},
		},
	})
}

// Sweep handles POST /v1/admin/sweep requests, triggering an immediate
// retention sweep.
func (h *AdminHandlers) Sweep(w http.ResponseWriter, r *http.Request) {
	swept := h.retention.SweepOnce()
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "swept_shards": swept})
}

// writeJSON writes a JSON response body.
func (h *AdminHandlers) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
