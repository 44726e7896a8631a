package health

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/trace"
)

// Readiness reports whether a dependency is ready.
type Readiness func() bool

// Server publishes readiness results through grpc.health.v1.
type Server struct {
	grpc     *grpc.Server
	health   *grpchealth.Server
	checks   map[string]Readiness
	interval time.Duration
}

func NewServer(checks map[string]Readiness, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor()),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             MinClientPingInterval,
			PermitWithoutStream: true,
		}),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, checks: checks, interval: interval}
	s.refresh()
	return s
}

// refresh runs every check; the overall status is SERVING only when all
// checks pass.
func (s *Server) refresh() {
	overall := healthpb.HealthCheckResponse_SERVING
	for name, ready := range s.checks {
		st := healthpb.HealthCheckResponse_SERVING
		if !ready() {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", overall)
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-ticker.C:
				s.refresh()
			}
		}
	}()
	slog.Info("health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Check asks the health server at addr for the status of service.
func Check(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
	)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, apperrors.Wrap(err, apperrors.Unavailable, "failed to dial health server")
	}
	defer conn.Close()

	ctx, tc := trace.EnsureContext(ctx)
	ctx = metadata.NewOutgoingContext(ctx, metadata.New(tc.ToMap()))
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, apperrors.FromGRPCError(err)
	}
	return resp.GetStatus(), nil
}
