// Package strategy authenticates requests. Each Strategy recognises one kind of
// credential; a Guard tries them in order and the first one that applies decides.
package strategy

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	"happyday/backend/internal/identity/domain"
)

// ErrNotApplicable is returned by a Strategy when the request carries no
// credentials of its kind.
var ErrNotApplicable = errors.New("strategy not applicable")

const (
	schemeBearer = "bearer"
	schemeBasic  = "basic"
)

// Request is the transport-neutral view of an incoming request.
type Request struct {
	Authorization string
}

// FromHTTP builds a Request from HTTP headers.
func FromHTTP(r *http.Request) Request {
	return Request{Authorization: r.Header.Get("Authorization")}
}

// FromIncomingContext builds a Request from gRPC metadata.
func FromIncomingContext(ctx context.Context) Request {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Request{}
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return Request{}
	}
	return Request{Authorization: vals[0]}
}

// credentials splits the Authorization header into a lower-cased scheme and its value.
func (r Request) credentials() (scheme, value string) {
	v := strings.TrimSpace(r.Authorization)
	scheme, value, ok := strings.Cut(v, " ")
	if !ok {
		return "", ""
	}
	return strings.ToLower(scheme), strings.TrimSpace(value)
}

// BearerToken returns the bearer token. ok is false when the request uses another
// scheme or none.
func (r Request) BearerToken() (token string, ok bool) {
	scheme, value := r.credentials()
	if scheme != schemeBearer {
		return "", false
	}
	return value, true
}

// Strategy authenticates one kind of credential.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, req Request) (*domain.User, error)
}

// PasswordAuthenticator checks an identifier and password pair and records the login.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, identifier, password string) (*domain.User, error)
}

// TokenVerifier resolves a bearer token to its principal.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*domain.User, error)
}

// Local authenticates "Authorization: Basic base64(identifier:password)".
type Local struct {
	auth PasswordAuthenticator
}

func NewLocal(auth PasswordAuthenticator) *Local {
	return &Local{auth: auth}
}

func (*Local) Name() string { return "local" }

func (l *Local) Authenticate(ctx context.Context, req Request) (*domain.User, error) {
	scheme, value := req.credentials()
	if scheme != schemeBasic {
		return nil, ErrNotApplicable
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, domain.Unauthorized(domain.ErrBadCredentials)
	}
	identifier, password, ok := strings.Cut(string(raw), ":")
	if !ok || identifier == "" || password == "" {
		return nil, domain.Unauthorized(domain.ErrBadCredentials)
	}
	u, err := l.auth.Authenticate(ctx, identifier, password)
	if errors.Is(err, domain.ErrValidation) {
		return nil, domain.Unauthorized(domain.ErrBadCredentials)
	}
	return u, err
}

// Bearer authenticates "Authorization: Bearer <token>".
type Bearer struct {
	verifier TokenVerifier
}

func NewBearer(v TokenVerifier) *Bearer {
	return &Bearer{verifier: v}
}

func (*Bearer) Name() string { return "bearer" }

func (b *Bearer) Authenticate(ctx context.Context, req Request) (*domain.User, error) {
	token, ok := req.BearerToken()
	if !ok {
		return nil, ErrNotApplicable
	}
	return b.verifier.VerifyToken(ctx, token)
}

// Guard runs strategies in order.
type Guard struct {
	strategies []Strategy
}

// NewGuard returns a Guard trying strategies in the given order.
func NewGuard(strategies ...Strategy) *Guard {
	return &Guard{strategies: strategies}
}

// Authenticate returns the principal and the name of the strategy that accepted the
// request. A request no strategy applies to is Unauthorized.
func (g *Guard) Authenticate(ctx context.Context, req Request) (*domain.User, string, error) {
	for _, s := range g.strategies {
		u, err := s.Authenticate(ctx, req)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			return nil, s.Name(), err
		}
		return u, s.Name(), nil
	}
	return nil, "", domain.Unauthorized(domain.ErrNoCredentials)
}

// Only returns a Guard restricted to the named strategies, keeping their order.
func (g *Guard) Only(names ...string) *Guard {
	var out []Strategy
	for _, s := range g.strategies {
		for _, n := range names {
			if s.Name() == n {
				out = append(out, s)
				break
			}
		}
	}
	return &Guard{strategies: out}
}
