package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/domain/event"
	"github.com/inkpress/assetloader/internal/port"
	"github.com/inkpress/assetloader/internal/service/fetcher"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "0.0.0.0:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Fetcher runs one asset fetch
type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (*domain.LoadRecord, error)
}

// Deps are the collaborators the server exposes over HTTP
type Deps struct {
	Store    port.Store
	Assets   port.AssetStore
	Fetcher  Fetcher
	Progress event.Subscriber

	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP API server
type Server struct {
	config          *Config
	store           port.Store
	logger          *zap.Logger
	server          *http.Server
	assetHandler    *AssetHandler
	apiHandler      *APIHandler
	progressHandler *ProgressHandler
	debugHandler    *DebugHandler
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config: cfg,
		store:  deps.Store,
		logger: logger,
	}

	s.assetHandler = NewAssetHandler(deps.Assets, logger)
	s.apiHandler = NewAPIHandler(deps.Store, deps.Fetcher, logger)
	s.progressHandler = NewProgressHandler(deps.Progress, logger)
	s.debugHandler = NewDebugHandler(deps.Store, deps.Assets, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Cached assets, served with range support
	mux.HandleFunc("GET /assets/{$}", s.assetHandler.HandleList)
	mux.HandleFunc("GET /assets/{name...}", s.assetHandler.HandleAsset)

	// Loader API
	mux.HandleFunc("POST /api/fetch", s.apiHandler.HandleFetch)
	mux.HandleFunc("GET /api/loads", s.apiHandler.HandleList)
	mux.HandleFunc("GET /api/loads/{id}", s.apiHandler.HandleGet)
	mux.HandleFunc("GET /api/progress", s.progressHandler.HandleStream)

	// Debug endpoints
	mux.HandleFunc("GET /debug/stats", s.debugHandler.HandleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
