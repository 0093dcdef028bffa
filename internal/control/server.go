// Package control exposes the engine's run state over the standard gRPC health protocol
// so supervisors can tell a hunting bot from a paused or disabled one.
package control

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reporting the engine.
const ServiceName = "huntbot.Engine"

// Status is the engine state the health service mirrors; *hunt.Engine implements it.
type Status interface {
	Enabled() bool
	IsPaused() bool
}

// Server is a gRPC server carrying the health service.
type Server struct {
	addr   string
	logger *zap.Logger
	grpc   *grpc.Server
	health *health.Server

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// NewServer builds a server that will listen on addr. Both the overall server and
// ServiceName start NOT_SERVING until the first Sync.
//
// Precondition: addr must be a host:port accepted by net.Listen.
func NewServer(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:   addr,
		logger: logger,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		last:   healthpb.HealthCheckResponse_NOT_SERVING,
	}
	s.health.SetServingStatus("", s.last)
	s.health.SetServingStatus(ServiceName, s.last)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Sync publishes the engine state: SERVING while enabled and not paused, NOT_SERVING
// otherwise.
//
// Postcondition: Returns the status now reported for ServiceName.
func (s *Server) Sync(st Status) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if st.Enabled() && !st.IsPaused() {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.mu.Lock()
	changed := status != s.last
	s.last = status
	s.mu.Unlock()

	if changed {
		s.health.SetServingStatus("", status)
		s.health.SetServingStatus(ServiceName, status)
		s.logger.Info("engine health changed",
			zap.String("status", status.String()),
			zap.Bool("enabled", st.Enabled()),
			zap.Bool("paused", st.IsPaused()),
		)
	}
	return status
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("control server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving control on %s: %w", lis.Addr(), err)
	}
	return nil
}

// Start listens on the configured address and serves; it implements server.Service.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
