package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "happyday/backend/api/auth/v1"
	"happyday/backend/internal/identity/domain"
	"happyday/backend/internal/identity/strategy"
)

// TokenVerifier resolves a bearer token to its record.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*domain.User, error)
}

// AuthServer implements authv1.AuthServiceServer on top of the auth service.
// Refresh and Me expect the auth interceptor to have stored the principal.
type AuthServer struct {
	authv1.UnimplementedAuthServiceServer
	svc    AuthAPI
	tokens TokenVerifier
}

// NewAuthServer returns a new Auth gRPC server.
func NewAuthServer(svc AuthAPI, tokens TokenVerifier) *AuthServer {
	return &AuthServer{svc: svc, tokens: tokens}
}

func (s *AuthServer) Register(ctx context.Context, req *authv1.RegisterRequest) (*authv1.AuthResponse, error) {
	res, err := s.svc.Register(ctx, domain.RegisterInput{
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		DateOfBirth:    req.DateOfBirth,
		Gender:         req.Gender,
		PhoneNumber:    req.PhoneNumber,
		PrivacyConsent: req.PrivacyConsent,
		TermsAccepted:  req.TermsAccepted,
	})
	if err != nil {
		return nil, GRPCError(err)
	}
	return &authv1.AuthResponse{AccessToken: res.AccessToken, User: res.User, ExpiresIn: res.ExpiresIn}, nil
}

func (s *AuthServer) Login(ctx context.Context, req *authv1.LoginRequest) (*authv1.AuthResponse, error) {
	res, err := s.svc.Login(ctx, domain.LoginInput{Email: req.Email, Username: req.Username, Password: req.Password})
	if err != nil {
		return nil, GRPCError(err)
	}
	return &authv1.AuthResponse{AccessToken: res.AccessToken, User: res.User, ExpiresIn: res.ExpiresIn}, nil
}

func (s *AuthServer) CreateAnonymous(ctx context.Context, _ *authv1.CreateAnonymousRequest) (*authv1.AuthResponse, error) {
	res, err := s.svc.CreateAnonymous(ctx)
	if err != nil {
		return nil, GRPCError(err)
	}
	return &authv1.AuthResponse{AccessToken: res.AccessToken, User: res.User, ExpiresIn: res.ExpiresIn}, nil
}

// VerifyToken checks the token in the request body, not the caller's credentials.
func (s *AuthServer) VerifyToken(ctx context.Context, req *authv1.VerifyTokenRequest) (*authv1.VerifyTokenResponse, error) {
	if req.Token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}
	u, err := s.tokens.VerifyToken(ctx, req.Token)
	if err != nil {
		return nil, GRPCError(err)
	}
	return &authv1.VerifyTokenResponse{Valid: true, User: u.Sanitize()}, nil
}

func (s *AuthServer) Refresh(ctx context.Context, _ *authv1.RefreshRequest) (*authv1.AuthResponse, error) {
	u, ok := strategy.PrincipalFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	res, err := s.svc.Refresh(ctx, u)
	if err != nil {
		return nil, GRPCError(err)
	}
	return &authv1.AuthResponse{AccessToken: res.AccessToken, User: res.User, ExpiresIn: res.ExpiresIn}, nil
}

func (s *AuthServer) Me(ctx context.Context, _ *authv1.MeRequest) (*authv1.MeResponse, error) {
	u, ok := strategy.PrincipalFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	return &authv1.MeResponse{User: u.Sanitize()}, nil
}

// GRPCError maps a service error to a status. Messages never carry the cause of an
// authentication or store failure.
func GRPCError(err error) error {
	var (
		ve *domain.ValidationError
		ce *domain.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.As(err, &ce):
		return status.Error(codes.AlreadyExists, ce.Field+" already in use")
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, "insufficient role")
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "user not found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	return status.Error(codes.Internal, "internal error")
}
