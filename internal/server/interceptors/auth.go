// Package interceptors holds the unary server interceptors of the gRPC server.
package interceptors

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"happyday/backend/internal/identity/domain"
	"happyday/backend/internal/identity/handler"
	"happyday/backend/internal/identity/strategy"
)

// Authenticator resolves request credentials to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, req strategy.Request) (*domain.User, string, error)
}

// AuthUnary returns a unary server interceptor that runs the guard on the request
// metadata and stores the principal in context. publicMethods is the set of full
// method names that may be called without credentials; on those, bad credentials
// are ignored and the call proceeds anonymously.
func AuthUnary(guard Authenticator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		public := publicMethods[info.FullMethod]
		creds := strategy.FromIncomingContext(ctx)
		if creds.Authorization == "" && public {
			return next(ctx, req)
		}

		u, name, err := guard.Authenticate(ctx, creds)
		if err != nil {
			if public && errors.Is(err, domain.ErrUnauthorized) {
				return next(ctx, req)
			}
			return nil, handler.GRPCError(err)
		}
		return next(strategy.WithPrincipal(ctx, u, name), req)
	}
}
