package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/aescanero/pagekit/internal/application/orchestrator"
	"github.com/aescanero/pagekit/internal/application/workers"
	"github.com/aescanero/pagekit/pkg/eventbus"
	"github.com/aescanero/pagekit/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the inspector HTTP server. It runs as an orchestrator
// module: Init starts serving, Destroy shuts it down.
type Server struct {
	router       *gin.Engine
	server       *http.Server
	port         int
	orchestrator *orchestrator.Manager
	bus          *eventbus.Bus
	storages     map[string]*storage.Storage
	health       *workers.HealthMonitor
	logger       *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// Config holds HTTP server configuration
type Config struct {
	Port         int
	Orchestrator *orchestrator.Manager
	Bus          *eventbus.Bus
	Storages     []*storage.Storage
	Health       *workers.HealthMonitor
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:       router,
		port:         cfg.Port,
		orchestrator: cfg.Orchestrator,
		bus:          cfg.Bus,
		storages:     make(map[string]*storage.Storage, len(cfg.Storages)),
		health:       cfg.Health,
		logger:       logger,
	}
	for _, st := range cfg.Storages {
		s.storages[st.Namespace()] = st
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.setupRoutes(gatherer)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Orchestrator endpoints
		v1.GET("/modules", s.handleListModules)
		v1.GET("/modules/:name", s.handleGetModule)
		v1.GET("/errors", s.handleListErrors)

		// Event bus endpoints
		v1.GET("/events", s.handleListEvents)
		v1.DELETE("/events", s.handleClearEvents)
		v1.GET("/listeners", s.handleListListeners)

		// Storage endpoints
		v1.GET("/storage", s.handleListNamespaces)
		v1.GET("/storage/:namespace/keys", s.handleListKeys)
		v1.GET("/storage/:namespace/items/:key", s.handleGetItem)
		v1.POST("/storage/:namespace/cleanup", s.handleCleanup)
	}
}

// SetupWebSocket adds the live event stream to the server
func (s *Server) SetupWebSocket(handler interface{ HandleEventStream(*gin.Context) }) {
	s.router.GET("/api/v1/events/ws", handler.HandleEventStream)
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// Init binds the listener and serves in the background. Serve errors are
// funnelled into the orchestrator.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = listener

	if s.orchestrator != nil {
		s.orchestrator.Go(ctx, "http", func(context.Context) error { return s.serve(listener) })
	} else {
		go s.serve(listener)
	}
	return nil
}

// Destroy shuts the server down
func (s *Server) Destroy(ctx context.Context) error {
	return s.Shutdown(ctx)
}

// Addr returns the bound address, empty before Init
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	return s.serve(listener)
}

func (s *Server) serve(listener net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", listener.Addr().String()))

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
