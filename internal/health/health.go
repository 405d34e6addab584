// Package health exposes the node's liveness over the standard gRPC health
// protocol so orchestrators can probe it without a custom client.
package health

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthsvc "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service identifier probes should query.
const ServiceName = "anna.kvs"

// Server runs the gRPC health service for the node.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *healthsvc.Server
	port         int
	logger       *zap.Logger
}

// NewServer creates a health server on the given port.
func NewServer(port int, logger *zap.Logger) *Server {
	grpcServer := grpc.NewServer()
	healthServer := healthsvc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return &Server{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		port:         port,
		logger:       logger,
	}
}

// Start begins serving in the background. The service reports NOT_SERVING
// until SetServing is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen for health checks: %w", err)
	}
	s.healthServer.SetServingStatus(ServiceName,
		healthpb.HealthCheckResponse_NOT_SERVING)
	go func() {
		s.logger.Info("health server listening", zap.Int("port", s.port))
		if err := s.grpcServer.Serve(ln); err != nil {
			s.logger.Error("health server failed", zap.Error(err))
		}
	}()
	return nil
}

// SetServing flips the advertised status of the node.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus(ServiceName, status)
}

// Stop drains in-flight probes and shuts down.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
