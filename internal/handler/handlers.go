// Package handler provides HTTP request handlers for the attendance server.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/tempusgeo/TempusGeo-Server/internal/config"
	apierrors "github.com/tempusgeo/TempusGeo-Server/internal/errors"
	"github.com/tempusgeo/TempusGeo-Server/internal/middleware"
	"github.com/tempusgeo/TempusGeo-Server/internal/model"
	"github.com/tempusgeo/TempusGeo-Server/internal/service"
	"github.com/tempusgeo/TempusGeo-Server/internal/util"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	store        *service.StoreService
	errorHandler *apierrors.Handler
	clock        util.Clock
	logger       *zap.Logger
	authCfg      config.AuthConfig
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store *service.StoreService, errorHandler *apierrors.Handler, clock util.Clock, logger *zap.Logger, authCfg config.AuthConfig) *Handlers {
	return &Handlers{
		store:        store,
		errorHandler: errorHandler,
		clock:        clock,
		logger:       logger,
		authCfg:      authCfg,
	}
}

type loginRequest struct {
	TenantID string `json:"tenant_id"`
	Secret   string `json:"secret"`
}

// Login handles POST /v1/auth/login requests.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantID == "" || req.Secret == "" {
		h.errorHandler.WriteValidationError(w, "tenant_id and secret are required", requestID)
		return
	}

	tenant, err := h.store.Authenticate(req.TenantID, req.Secret)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	token, err := middleware.NewTenantToken(h.authCfg.JWTSecret, tenant.ID, h.authCfg.TokenTTL)
	if err != nil {
		h.errorHandler.WriteInternalError(w, "could not issue token", requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"status": "ok",
		"token":  token,
		"tenant": map[string]any{
			"id":                  tenant.ID,
			"name":                tenant.Name,
			"subscription_expiry": tenant.SubscriptionExpiry,
		},
	})
}

type registerRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

// RegisterTenant handles POST /v1/tenants requests (business registration).
func (h *Handlers) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Secret == "" {
		h.errorHandler.WriteValidationError(w, "name and secret are required", requestID)
		return
	}

	tenant, err := h.store.RegisterTenant(req.Name, req.Email, req.Secret)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, map[string]any{
		"status": "ok",
		"tenant": map[string]any{
			"id":                  tenant.ID,
			"name":                tenant.Name,
			"email":               tenant.Email,
			"subscription_expiry": tenant.SubscriptionExpiry,
		},
	})
}

type changeSecretRequest struct {
	OldSecret string `json:"old_secret"`
	NewSecret string `json:"new_secret"`
}

// ChangeSecret handles POST /v1/auth/password requests.
func (h *Handlers) ChangeSecret(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	tenantID := middleware.TenantID(r.Context())

	var req changeSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewSecret == "" {
		h.errorHandler.WriteValidationError(w, "old_secret and new_secret are required", requestID)
		return
	}

	if err := h.store.ChangeSecret(tenantID, req.OldSecret, req.NewSecret); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}

// GetConfig handles GET /v1/config requests.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.store.LoadTenantConfig(middleware.TenantID(r.Context()))
	h.writeJSONResponse(w, http.StatusOK, cfg)
}

type updateConfigRequest struct {
	Settings map[string]any `json:"settings"`
}

// UpdateConfig handles PUT /v1/config requests.
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Settings == nil {
		h.errorHandler.WriteValidationError(w, "settings object is required", requestID)
		return
	}

	cfg, err := h.store.UpdateTenantConfig(middleware.TenantID(r.Context()), req.Settings)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, cfg)
}

// ReadAttendance handles GET /v1/attendance/{year}/{month} requests. The
// store routes the read to the hot or cold tier.
func (h *Handlers) ReadAttendance(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)

	year, errY := strconv.Atoi(vars["year"])
	month, errM := strconv.Atoi(vars["month"])
	if errY != nil || errM != nil || month < 1 || month > 12 {
		h.errorHandler.WriteValidationError(w, "invalid year or month", requestID)
		return
	}

	shard := h.store.Read(r.Context(), middleware.TenantID(r.Context()), year, month)
	h.writeJSONResponse(w, http.StatusOK, shard)
}

type clockRequest struct {
	Employee  string `json:"employee"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp,omitempty"`
	Location  string `json:"location,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Clock handles POST /v1/attendance/clock requests.
func (h *Handlers) Clock(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req clockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Employee == "" {
		h.errorHandler.WriteValidationError(w, "employee and action are required", requestID)
		return
	}

	ts := h.clock.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			h.errorHandler.WriteValidationError(w, "timestamp must be RFC3339", requestID)
			return
		}
		ts = parsed
	}

	tenantID := middleware.TenantID(r.Context())
	action := model.ClockAction(req.Action)
	if err := h.store.AppendShift(tenantID, req.Employee, action, ts, req.Location, req.Note); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"employee":  req.Employee,
		"action":    req.Action,
		"timestamp": ts.Format(time.RFC3339),
	})
}

// EmployeeStatus handles GET /v1/attendance/status/{employee} requests.
func (h *Handlers) EmployeeStatus(w http.ResponseWriter, r *http.Request) {
	employee := mux.Vars(r)["employee"]
	status := h.store.EmployeeStatus(middleware.TenantID(r.Context()), employee)
	h.writeJSONResponse(w, http.StatusOK, status)
}

// writeJSONResponse writes a JSON response body.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
