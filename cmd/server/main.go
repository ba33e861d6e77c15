// server runs the auth API over gRPC and HTTP until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"happyday/backend/internal/config"
	"happyday/backend/internal/db"
	"happyday/backend/internal/db/migrate"
	"happyday/backend/internal/identity/handler"
	"happyday/backend/internal/identity/repository"
	"happyday/backend/internal/identity/service"
	"happyday/backend/internal/identity/strategy"
	"happyday/backend/internal/security"
	"happyday/backend/internal/server"
	"happyday/backend/internal/telemetry"
	telemetryotel "happyday/backend/internal/telemetry/otel"
)

const (
	serviceName       = "happyday-auth"
	shutdownTimeout   = 10 * time.Second
	readinessInterval = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server.exit", "error", err)
		os.Exit(1)
	}
}

// store is the credential store plus its readiness probe.
type store interface {
	service.UserStore
	handler.Pinger
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTelEndpoint, serviceName, cfg.OTelInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		if cfg.OTelEndpoint != "" {
			// Let detached auth event emits finish before the exporters close.
			time.Sleep(telemetry.ShutdownDrainDuration)
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			logger.Warn("telemetry.shutdown.fail", "error", err)
		}
	}()
	events, err := telemetryotel.NewEventEmitter(providers.LoggerProvider, providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	users, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := newTokenCodec(cfg)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}
	logger.Info("server.tokens", "alg", tokens.Alg(), "issuer", cfg.JWTIssuer, "ttl", tokens.TTL().String())

	svc := service.NewAuthService(
		users,
		security.NewHasher(cfg.BcryptCost, cfg.HashMaxConcurrency),
		tokens,
		service.Config{TokenTTL: cfg.TokenTTL(), TrackSessionActivity: cfg.TrackSessionActivity},
		service.WithEventEmitter(events),
		service.WithLogger(logger),
	)
	guard := strategy.NewGuard(strategy.NewBearer(svc), strategy.NewLocal(svc))

	grpcServer, hs := server.NewGRPCServer(server.Deps{Auth: svc, Guard: guard, Log: logger})
	routes := handler.NewHTTPHandler(svc, guard, users, cfg.HTTPMaxBodyBytes, logger).Routes()
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, routes, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc.listen", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http.listen", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		server.WatchReadiness(gctx, hs, users, readinessInterval, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server.shutdown")
		hs.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(sctx)
		grpcServer.GracefulStop()
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server.stopped")
	return nil
}

// openStore returns the Postgres store, or the in-memory store when no DSN is set.
// Config validation already rejects a missing DSN in production.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("store.memory", "reason", "DATABASE_URL is not set; records are lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}
	if cfg.MigrateOnStart {
		if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("store.migrated")
	}
	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresRepository(sqlDB), func() { _ = sqlDB.Close() }, nil
}

func newTokenCodec(cfg *config.Config) (*security.TokenCodec, error) {
	if !cfg.HasKeyPair() {
		return security.NewHMACCodec(cfg.SigningSecret(), cfg.JWTIssuer, cfg.TokenTTL())
	}
	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("JWT_PRIVATE_KEY: %w", err)
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("JWT_PUBLIC_KEY: %w", err)
	}
	return security.NewKeyPairCodec(priv, pub, cfg.JWTIssuer, cfg.TokenTTL())
}
