package strategy

import (
	"context"
	"slices"

	"happyday/backend/internal/identity/domain"
)

type contextKey struct{ name string }

var (
	principalKey = contextKey{"principal"}
	strategyKey  = contextKey{"strategy"}
)

// WithPrincipal returns a context carrying the authenticated record and the name of
// the strategy that produced it.
func WithPrincipal(ctx context.Context, u *domain.User, strategyName string) context.Context {
	ctx = context.WithValue(ctx, principalKey, u)
	return context.WithValue(ctx, strategyKey, strategyName)
}

// PrincipalFrom returns the authenticated record from ctx.
func PrincipalFrom(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(principalKey).(*domain.User)
	return u, ok && u != nil
}

// StrategyFrom returns the name of the strategy that authenticated ctx.
func StrategyFrom(ctx context.Context) string {
	s, _ := ctx.Value(strategyKey).(string)
	return s
}

// RequireRole checks that u holds one of roles. A nil principal is Unauthorized,
// any other mismatch is domain.ErrForbidden.
func RequireRole(u *domain.User, roles ...domain.Role) error {
	if u == nil {
		return domain.Unauthorized(domain.ErrNoCredentials)
	}
	if !u.IsActive {
		return domain.Unauthorized(domain.ErrPrincipalInactive)
	}
	if slices.Contains(roles, u.Role) {
		return nil
	}
	return domain.ErrForbidden
}
