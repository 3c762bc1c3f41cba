package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/androidleak/leak-triage/internal/config"
)

// Server hosts the triage engine over gRPC alongside the standard health and
// reflection services.
type Server struct {
	cfg    config.ServerConfig
	grpc   *grpc.Server
	lis    net.Listener
	health *health.Server
	logger *slog.Logger
}

// NewServer listens on cfg.Address and registers triage, health, reflection
// and prometheus handlers. A nil logger falls back to slog.Default.
func NewServer(cfg config.ServerConfig, triage TriageEngineServer, logger *slog.Logger, opts ...grpc.ServerOption) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	gs := grpc.NewServer(append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}, opts...)...)

	RegisterTriageEngineServer(gs, triage)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	grpc_prometheus.Register(gs)

	// Triage reports NOT_SERVING until Start hands the listener to grpc.
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(TriageEngineServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{cfg: cfg, grpc: gs, lis: lis, health: hs, logger: logger}, nil
}

// Services lists the fully qualified gRPC services the server exposes.
func (s *Server) Services() []string {
	names := make([]string, 0, 3)
	for name := range s.grpc.GetServiceInfo() {
		names = append(names, name)
	}
	return names
}

// Start marks the triage service SERVING and blocks serving requests until Shutdown.
func (s *Server) Start() error {
	if s.grpc == nil || s.lis == nil {
		return fmt.Errorf("server not initialised")
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(TriageEngineServiceName, healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("triage engine serving",
		slog.String("address", s.Address()),
		slog.String("service", TriageEngineServiceName),
		slog.Any("services", s.Services()),
	)
	return s.grpc.Serve(s.lis)
}

// Shutdown reports NOT_SERVING to health checkers, then drains in-flight case
// runs. Runs still going when ctx ends are cut off and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpc == nil {
		return nil
	}
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
		_ = s.lis.Close()
		s.logger.Info("triage engine drained", slog.String("address", s.Address()))
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		_ = s.lis.Close()
		s.logger.Warn("triage engine stopped before in-flight runs finished", slog.Any("error", ctx.Err()))
		return ctx.Err()
	}
}

// Address returns the bound listener address, which differs from the configured
// one when port 0 was requested.
func (s *Server) Address() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// GracefulTimeout is how long Shutdown callers should allow for draining.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
