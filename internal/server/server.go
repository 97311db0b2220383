// Package server provides the HTTP server for the attendance backend.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tempusgeo/TempusGeo-Server/internal/config"
	apierrors "github.com/tempusgeo/TempusGeo-Server/internal/errors"
	"github.com/tempusgeo/TempusGeo-Server/internal/handler"
	"github.com/tempusgeo/TempusGeo-Server/internal/health"
	"github.com/tempusgeo/TempusGeo-Server/internal/metrics"
	"github.com/tempusgeo/TempusGeo-Server/internal/middleware"
	"github.com/tempusgeo/TempusGeo-Server/internal/service"
	"github.com/tempusgeo/TempusGeo-Server/internal/util"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	handlers      *handler.Handlers
	adminHandlers *handler.AdminHandlers
	healthCheck   *health.HealthCheck
	errorHandler  *apierrors.Handler
	metrics       *metrics.Metrics
	logger        *zap.Logger
	cfg           *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	store *service.StoreService,
	retention *service.RetentionService,
	healthCheck *health.HealthCheck,
	clock util.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:        router,
		httpServer:    httpServer,
		handlers:      handler.NewHandlers(store, errorHandler, clock, logger, cfg.Auth),
		adminHandlers: handler.NewAdminHandlers(store, retention, errorHandler, logger),
		healthCheck:   healthCheck,
		errorHandler:  errorHandler,
		metrics:       m,
		logger:        logger,
		cfg:           cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS([]string{"*"}),
	}
	if s.metrics != nil {
		middlewareChain = append(middlewareChain, metrics.Middleware(s.metrics))
	}
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.errorHandler,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints; public so load balancers can probe them.
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Public endpoints.
	v1.HandleFunc("/auth/login", s.handlers.Login).Methods(http.MethodPost)
	v1.HandleFunc("/tenants", s.handlers.RegisterTenant).Methods(http.MethodPost)

	// Tenant endpoints behind JWT auth.
	tenant := v1.NewRoute().Subrouter()
	tenant.Use(middleware.TenantAuth(s.cfg.Auth.JWTSecret, s.errorHandler, s.logger))
	tenant.HandleFunc("/auth/password", s.handlers.ChangeSecret).Methods(http.MethodPost)
	tenant.HandleFunc("/config", s.handlers.GetConfig).Methods(http.MethodGet)
	tenant.HandleFunc("/config", s.handlers.UpdateConfig).Methods(http.MethodPut)
	tenant.HandleFunc("/attendance/clock", s.handlers.Clock).Methods(http.MethodPost)
	tenant.HandleFunc("/attendance/status/{employee}", s.handlers.EmployeeStatus).Methods(http.MethodGet)
	tenant.HandleFunc("/attendance/{year}/{month}", s.handlers.ReadAttendance).Methods(http.MethodGet)

	// Admin endpoints behind the shared admin key.
	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminAuth(s.cfg.Auth.AdminKey, s.errorHandler))
	admin.HandleFunc("/tenants", s.adminHandlers.ListTenants).Methods(http.MethodGet)
	admin.HandleFunc("/tenants/{tenant_id}", s.adminHandlers.AdjustTenant).Methods(http.MethodPut)
	admin.HandleFunc("/tenants/{tenant_id}", s.adminHandlers.DeleteTenant).Methods(http.MethodDelete)
	admin.HandleFunc("/tenants/{tenant_id}/payments", s.adminHandlers.ExtendSubscription).Methods(http.MethodPost)
	admin.HandleFunc("/system-config", s.adminHandlers.GetSystemConfig).Methods(http.MethodGet)
	admin.HandleFunc("/system-config", s.adminHandlers.UpdateSystemConfig).Methods(http.MethodPut)
	admin.HandleFunc("/snapshot", s.adminHandlers.Snapshot).Methods(http.MethodGet)
	admin.HandleFunc("/sweep", s.adminHandlers.Sweep).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.httpServer.Addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
