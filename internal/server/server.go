package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/internal/event"
	"github.com/HerbHall/edgescan/internal/orchestrator"
	"github.com/HerbHall/edgescan/internal/registry"
	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/internal/version"
	"github.com/HerbHall/edgescan/pkg/models"
)

// Scans is the orchestrator surface the API drives.
type Scans interface {
	TriggerScan(subnets []string) bool
	Status() orchestrator.Status
	SetMonitored(ctx context.Context, key string, monitored bool, sel registry.Selection) (models.Device, error)
}

// Devices is the read side of the device registry.
type Devices interface {
	Devices() []models.Device
	Monitored() []models.Device
	Get(key string) (models.Device, error)
}

// RouteRegistrar mounts additional handlers on the server mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Deps are the collaborators the server exposes over HTTP. History, Events,
// Gatherer and Routes are optional.
type Deps struct {
	Scans    Scans
	Devices  Devices
	History  services.ScanRepository
	Events   event.Subscriber
	Gatherer prometheus.Gatherer
	Routes   []RouteRegistrar
}

// Options tunes the HTTP listener.
type Options struct {
	Addr      string
	RateLimit float64
	RateBurst int
}

// Server is the edgescan HTTP API.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a new Server instance.
func New(opts Options, deps Deps, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		deps:   deps,
		logger: logger,
		mux:    mux,
	}
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      RateLimit(opts.RateLimit, opts.RateBurst, logger)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.registerCoreRoutes()
	for _, r := range deps.Routes {
		r.RegisterRoutes(mux)
	}

	return s
}

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.mux.Handle("GET /api/v1/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.deps.Events != nil {
		s.mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	}

	s.mux.HandleFunc("POST /api/v1/scan", s.handleTriggerScan)
	s.mux.HandleFunc("GET /api/v1/scan/status", s.handleScanStatus)
	s.mux.HandleFunc("GET /api/v1/scans", s.handleListScans)

	s.mux.HandleFunc("GET /api/v1/devices", s.handleListDevices)
	s.mux.HandleFunc("GET /api/v1/devices/export", s.handleExportDevices)
	s.mux.HandleFunc("PUT /api/v1/devices/{key}/monitored", s.handleSetMonitored)
	s.mux.HandleFunc("GET /api/v1/monitored", s.handleListMonitored)
	s.mux.HandleFunc("POST /api/v1/monitored", s.handleAddMonitored)
	s.mux.HandleFunc("DELETE /api/v1/monitored/{key}", s.handleRemoveMonitored)
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Edgescan-Version", version.Short())
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "edgescan",
		"version": version.Map(),
	})
}
