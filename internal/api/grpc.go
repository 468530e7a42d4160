package api

import (
	"fmt"
	"net"

	"Go2NetGuard/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer serves the standard gRPC health protocol.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
}

// NewGRPCServer listens on addr and registers the health service for the
// whole server and for ServiceName. Both start as NOT_SERVING.
func NewGRPCServer(addr string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	return &HealthServer{srv: srv, health: hs, lis: lis}, nil
}

// Addr returns the bound address.
func (h *HealthServer) Addr() net.Addr {
	return h.lis.Addr()
}

// Serve blocks until Stop.
func (h *HealthServer) Serve() error {
	logger.Infof("gRPC health server listening at %v", h.lis.Addr())
	return h.srv.Serve(h.lis)
}

// SetServing flips both registered services.
func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Stop marks the services as shutting down and stops the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.srv.GracefulStop()
}
