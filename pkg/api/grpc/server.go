package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/aescanero/pagekit/internal/application/orchestrator"
	"github.com/aescanero/pagekit/pkg/eventbus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// OrchestratorService is the health service name tracking the application state
const OrchestratorService = "pagekit.orchestrator"

// Server represents the gRPC API server. It runs as an orchestrator module:
// Init starts serving, Destroy stops it.
type Server struct {
	server       *grpc.Server
	health       *health.Server
	port         int
	orchestrator *orchestrator.Manager
	bus          *eventbus.Bus
	logger       *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	sub      *eventbus.Subscription
}

// Config holds gRPC server configuration
type Config struct {
	Port         int
	Orchestrator *orchestrator.Manager
	Bus          *eventbus.Bus
	Logger       *zap.Logger
}

// NewServer creates a new gRPC server
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	s := &Server{
		server:       grpcServer,
		health:       healthServer,
		port:         cfg.Port,
		orchestrator: cfg.Orchestrator,
		bus:          cfg.Bus,
		logger:       logger,
	}

	s.setStatus(orchestrator.StateIdle)
	if cfg.Orchestrator != nil {
		s.setStatus(cfg.Orchestrator.State())
	}

	return s
}

// Init binds the listener, follows the lifecycle events and serves in the
// background.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	if s.bus != nil {
		sub, err := s.bus.Subscribe("app:*", s.onLifecycle, eventbus.SubscribeOptions{})
		if err != nil {
			listener.Close()
			s.listener = nil
			return fmt.Errorf("failed to follow lifecycle: %w", err)
		}
		s.sub = sub
	}

	if s.orchestrator != nil {
		s.orchestrator.Go(ctx, "grpc", func(context.Context) error { return s.serve(listener) })
	} else {
		go s.serve(listener)
	}
	return nil
}

// Destroy stops the server
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

func (s *Server) serve(listener net.Listener) error {
	s.logger.Info("starting gRPC server", zap.String("addr", listener.Addr().String()))

	if err := s.server.Serve(listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gRPC server")

	s.mu.Lock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.mu.Unlock()

	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
	}

	s.logger.Info("gRPC server shut down complete")
	return nil
}

func (s *Server) onLifecycle(ctx context.Context, event eventbus.Event) error {
	if app, ok := event.Payload.(orchestrator.AppEvent); ok {
		s.setStatus(app.State)
	}
	return nil
}

// setStatus maps the application state onto the health service
func (s *Server) setStatus(state orchestrator.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == orchestrator.StateReady {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(OrchestratorService, status)

	s.logger.Debug("health status updated",
		zap.String("state", string(state)),
		zap.String("status", status.String()))
}
