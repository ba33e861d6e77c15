package server

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	authv1 "happyday/backend/api/auth/v1"
	"happyday/backend/internal/identity/handler"
	"happyday/backend/internal/server/interceptors"
)

// AuthBackend is what the gRPC auth handler needs from the auth service.
type AuthBackend interface {
	handler.AuthAPI
	handler.TokenVerifier
}

// Deps holds the dependencies of the gRPC server.
type Deps struct {
	Auth  AuthBackend
	Guard interceptors.Authenticator
	// Log receives one line per RPC. Nil uses slog.Default.
	Log *slog.Logger
}

// healthMethods are not logged.
var healthMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,
}

// NewGRPCServer builds a server with tracing, request logging and the auth guard
// installed, and every service registered.
func NewGRPCServer(deps Deps) (*grpc.Server, *health.Server) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(log, healthMethods),
			interceptors.AuthUnary(deps.Guard, authv1.PublicMethods),
		),
	)
	return s, RegisterServices(s, deps)
}

// RegisterServices registers the auth and health services with s. The returned
// health server reports SERVING for both the server and the auth service.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) *health.Server {
	authv1.RegisterAuthServiceServer(s, handler.NewAuthServer(deps.Auth, deps.Auth))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(authv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// WatchReadiness pings p every interval and flips the auth service between SERVING
// and NOT_SERVING. It returns when ctx is done.
func WatchReadiness(ctx context.Context, hs *health.Server, p handler.Pinger, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := healthpb.HealthCheckResponse_SERVING
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := p.Ping(pingCtx)
		cancel()
		next := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			next = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if next == last {
			continue
		}
		if err != nil {
			log.WarnContext(ctx, "grpc.health.not_serving", "error", err)
		} else {
			log.InfoContext(ctx, "grpc.health.serving")
		}
		hs.SetServingStatus(authv1.ServiceName, next)
		last = next
	}
}
