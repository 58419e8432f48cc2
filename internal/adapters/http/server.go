// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/geoflux/stratum/internal/application"
	"github.com/geoflux/stratum/internal/config"
	"github.com/geoflux/stratum/internal/ports/input"
)

// Services bundles the application services exposed over HTTP.
type Services struct {
	Registration input.RegistrationService
	Catalog      input.LayerCatalog
	Resolver     input.RequestResolver
	Preview      input.PreviewService
	Composites   input.CompositeAssembler
	Health       input.HealthChecker
	Refresh      *application.RefreshService // optional, enables the refresh endpoint
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server       *http.Server
	router       *mux.Router
	registration input.RegistrationService
	catalog      input.LayerCatalog
	resolver     input.RequestResolver
	preview      input.PreviewService
	composites   input.CompositeAssembler
	health       input.HealthChecker
	refresh      *application.RefreshService
	metricsMW    mux.MiddlewareFunc
	logger       *slog.Logger
	config       config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.ServerConfig,
	svcs Services,
	metricsMW mux.MiddlewareFunc,
	logger *slog.Logger,
) *Server {
	s := &Server{
		registration: svcs.Registration,
		catalog:      svcs.Catalog,
		resolver:     svcs.Resolver,
		preview:      svcs.Preview,
		composites:   svcs.Composites,
		health:       svcs.Health,
		refresh:      svcs.Refresh,
		metricsMW:    metricsMW,
		logger:       logger,
		config:       cfg,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.metricsMW != nil {
		r.Use(s.metricsMW)
	}

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	// Service registration endpoints
	api.HandleFunc("/services", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/services", s.handleListServices).Methods(http.MethodGet)

	// Refresh endpoint (only if refresh service is configured)
	if s.refresh != nil {
		api.HandleFunc("/services/refresh", s.handleRefresh).Methods(http.MethodPost)
	}

	// Layer catalog endpoints
	api.HandleFunc("/layers", s.handleListLayers).Methods(http.MethodGet)
	api.HandleFunc("/layers/{resourceId}", s.handleGetLayer).Methods(http.MethodGet)
	api.HandleFunc("/layers/{resourceId}", s.handleDeleteLayer).Methods(http.MethodDelete)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	// Resolution and preview endpoints
	api.HandleFunc("/resolve", s.handleResolve).Methods(http.MethodPost)
	api.HandleFunc("/preview", s.handlePreview).Methods(http.MethodPost)
	api.HandleFunc("/composites", s.handleComposite).Methods(http.MethodPost)

	// Staged artifact retrieval
	r.HandleFunc(application.PreviewPathPrefix+"{artifactId}", s.handleGetArtifact).Methods(http.MethodGet)

	// OpenAPI spec and Swagger UI
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleSwaggerUI).Methods(http.MethodGet)
	r.HandleFunc("/swagger", s.handleSwaggerUI).Methods(http.MethodGet)

	// Frontend for layer previews (if enabled)
	if s.config.FrontendEnabled {
		r.HandleFunc("/", s.handleFrontend).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
