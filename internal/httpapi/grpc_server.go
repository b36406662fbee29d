package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"larpcamp.org/internal/obs"
)

// GRPCServer exposes the store readiness through the standard
// grpc.health.v1 service, for load balancers and orchestrators that only
// speak gRPC probes.
type GRPCServer struct {
	health *health.Server
	probe  ReadyProbe
}

// NewGRPCServer creates the health service. Status starts NOT_SERVING until
// the first Refresh.
func NewGRPCServer(probe ReadyProbe) *GRPCServer {
	if probe == nil {
		probe = readyFunc(func(context.Context) error { return nil })
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{health: hs, probe: probe}
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh pings the store and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	err := s.probe.Ping(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(err == nil)
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
	return err
}

// Shutdown flips every service to NOT_SERVING ahead of a graceful stop.
func (s *GRPCServer) Shutdown() { s.health.Shutdown() }
