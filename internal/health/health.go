// Package health exposes the orchestrator state over the standard gRPC
// health protocol (grpc.health.v1).
package health

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/service"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "portunus.agent"

// Server serves gRPC health checks.  It starts NOT_SERVING and follows the
// orchestrator through OnStateChange.
type Server struct {
	addr   string
	logger zerolog.Logger
	hs     *health.Server
	gs     *grpc.Server
}

func NewServer(addr string, logger zerolog.Logger) *Server {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{
		addr:   addr,
		logger: logger.With().Str("component", "health").Logger(),
		hs:     hs,
		gs:     gs,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// OnStateChange implements service.StateListener.
func (s *Server) OnStateChange(st service.State) {
	if st.Serving() {
		s.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(ServiceName, status)
}

// Check answers a health query in-process.
func (s *Server) Check(ctx context.Context, svc string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")

	errc := make(chan error, 1)
	go func() { errc <- s.gs.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.hs.Shutdown()
		s.gs.GracefulStop()
		<-errc
		return nil
	case err := <-errc:
		return err
	}
}
