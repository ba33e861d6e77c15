// Package service orchestrates registration, login, anonymous bootstrap and token
// verification on top of the credential store, the password hasher and the token codec.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"happyday/backend/internal/identity/domain"
	"happyday/backend/internal/identity/strategy"
	"happyday/backend/internal/security"
	"happyday/backend/internal/telemetry"
)

// AnonymousPrefix starts every guest username.
const AnonymousPrefix = "anonymous_"

// AuthResult is returned by every flow that issues a token.
type AuthResult struct {
	AccessToken string         `json:"access_token"`
	User        domain.Profile `json:"user"`
	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// UserStore is the credential store contract the service depends on.
type UserStore interface {
	FindByIdentifier(ctx context.Context, value string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Save(ctx context.Context, u *domain.User) (*domain.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, hash, updatedBy string, at time.Time) (*domain.User, error)
}

// Config tunes the service.
type Config struct {
	// TokenTTL is the access token lifetime; zero uses the codec default.
	TokenTTL time.Duration
	// TrackSessionActivity makes VerifyToken record last_login on every verified request.
	TrackSessionActivity bool
}

// AuthService implements the authentication flows. It is stateless; concurrent
// calls are safe as long as the store is.
type AuthService struct {
	users  UserStore
	hasher *security.Hasher
	tokens *security.TokenCodec
	cfg    Config
	events telemetry.EventEmitter
	log    *slog.Logger
	now    func() time.Time
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithEventEmitter sends auth outcomes to e.
func WithEventEmitter(e telemetry.EventEmitter) Option {
	return func(s *AuthService) { s.events = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) { s.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(users UserStore, hasher *security.Hasher, tokens *security.TokenCodec, cfg Config, opts ...Option) *AuthService {
	s := &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		cfg:    cfg,
		events: telemetry.Nop{},
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the input, creates an active record with a hashed password and
// returns a token for it. Validation, including consent, happens before the store
// is touched.
func (s *AuthService) Register(ctx context.Context, in domain.RegisterInput) (*AuthResult, error) {
	in.Normalize()
	now := s.now().UTC()
	if err := in.Validate(now); err != nil {
		s.fail(ctx, telemetry.ActionRegister, "", "", err)
		return nil, err
	}
	email := strings.ToLower(in.Email)
	if err := s.ensureAvailable(ctx, in.Username, email); err != nil {
		s.fail(ctx, telemetry.ActionRegister, "", "", err)
		return nil, err
	}
	hash, err := s.hasher.Hash(ctx, security.Raw(in.Password))
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	u := &domain.User{
		ID:             uuid.NewString(),
		Username:       in.Username,
		Email:          email,
		PasswordHash:   hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Gender:         domain.Gender(in.Gender),
		PhoneNumber:    in.PhoneNumber,
		IsActive:       true,
		Role:           domain.RoleUser,
		PrivacyConsent: in.PrivacyConsent,
		TermsAccepted:  in.TermsAccepted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.DateOfBirth != "" {
		dob, err := domain.ParseDateOfBirth(in.DateOfBirth, now)
		if err != nil {
			return nil, err
		}
		u.DateOfBirth = &dob
	}

	saved, err := s.users.Save(ctx, u)
	if err != nil {
		s.fail(ctx, telemetry.ActionRegister, "", "", err)
		return nil, err
	}
	res, err := s.issue(saved)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "auth.register.ok", "user_id", saved.ID)
	s.succeed(ctx, telemetry.ActionRegister, saved.ID, "")
	return res, nil
}

// ensureAvailable is a fast-path check; the store's unique constraints decide races.
func (s *AuthService) ensureAvailable(ctx context.Context, username, email string) error {
	if username != "" {
		existing, err := s.users.FindByIdentifier(ctx, username)
		if err != nil {
			return err
		}
		if existing != nil && existing.Username == username {
			return &domain.ConflictError{Op: "register", Field: "username"}
		}
	}
	existing, err := s.users.FindByIdentifier(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return &domain.ConflictError{Op: "register", Field: "email"}
	}
	return nil
}

// Login authenticates by email or username and password and returns a fresh token.
// Every credential failure produces the same UnauthorizedError.
func (s *AuthService) Login(ctx context.Context, in domain.LoginInput) (*AuthResult, error) {
	if err := in.Validate(); err != nil {
		s.fail(ctx, telemetry.ActionLogin, "", "", err)
		return nil, err
	}
	saved, err := s.Authenticate(ctx, in.Identifier(), in.Password)
	if err != nil {
		s.fail(ctx, telemetry.ActionLogin, "", "", err)
		return nil, err
	}
	res, err := s.issue(saved)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "auth.login.ok", "user_id", saved.ID)
	s.succeed(ctx, telemetry.ActionLogin, saved.ID, "")
	return res, nil
}

// Authenticate resolves identifier, checks password and records the login. It backs
// Login and the credential-pair strategy. An unknown identifier costs one dummy
// hash comparison so timing does not reveal which identifiers exist.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, &domain.ValidationError{Field: "credentials", Msg: "identifier and password are required"}
	}
	u, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.hasher.VerifyDummy(ctx, password)
		return nil, domain.Unauthorized(domain.ErrPrincipalNotFound)
	}
	if !u.HasPassword() {
		s.hasher.VerifyDummy(ctx, password)
		return nil, domain.Unauthorized(domain.ErrNoSecret)
	}
	if !s.hasher.Verify(ctx, password, u.PasswordHash) {
		return nil, domain.Unauthorized(domain.ErrSecretMismatch)
	}
	if !u.IsActive {
		return nil, domain.Unauthorized(domain.ErrPrincipalInactive)
	}
	return s.recordLogin(ctx, u.ID)
}

// recordLogin advances last_login in the store without rewriting the rest of the
// record. A record deactivated since it was read is Unauthorized.
func (s *AuthService) recordLogin(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.TouchLastLogin(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.Unauthorized(domain.ErrPrincipalInactive)
	}
	return u, nil
}

// CreateAnonymous creates a guest principal with consents accepted and no password,
// and returns a token for it.
func (s *AuthService) CreateAnonymous(ctx context.Context) (*AuthResult, error) {
	now := s.now().UTC()
	u := &domain.User{
		ID:             uuid.NewString(),
		Username:       AnonymousPrefix + strings.ToLower(ulid.Make().String()),
		IsAnonymous:    true,
		IsActive:       true,
		Role:           domain.RoleUser,
		PrivacyConsent: true,
		TermsAccepted:  true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	saved, err := s.users.Save(ctx, u)
	if err != nil {
		s.fail(ctx, telemetry.ActionAnonymous, "", "", err)
		return nil, err
	}
	res, err := s.issue(saved)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "auth.anonymous.ok", "user_id", saved.ID)
	s.succeed(ctx, telemetry.ActionAnonymous, saved.ID, "")
	return res, nil
}

// Refresh issues a new token for a principal that has already been authenticated.
// The record is re-read so a deactivation since the last token is honoured.
func (s *AuthService) Refresh(ctx context.Context, u *domain.User) (*AuthResult, error) {
	if u == nil {
		return nil, domain.Unauthorized(domain.ErrPrincipalNotFound)
	}
	current, err := s.users.FindByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		err := domain.Unauthorized(domain.ErrPrincipalNotFound)
		s.fail(ctx, telemetry.ActionRefresh, u.ID, "", err)
		return nil, err
	}
	if !current.IsActive {
		err := domain.Unauthorized(domain.ErrPrincipalInactive)
		s.fail(ctx, telemetry.ActionRefresh, u.ID, "", err)
		return nil, err
	}
	res, err := s.issue(current)
	if err != nil {
		return nil, err
	}
	s.succeed(ctx, telemetry.ActionRefresh, current.ID, "")
	return res, nil
}

// VerifyToken decodes token and resolves its subject. A missing or inactive subject
// is Unauthorized. With TrackSessionActivity set, last_login is advanced.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*domain.User, error) {
	fp := security.Fingerprint(token)
	claims, err := s.tokens.Verify(token)
	if err != nil {
		uerr := domain.Unauthorized(err)
		s.fail(ctx, telemetry.ActionVerify, "", fp, uerr)
		return nil, uerr
	}
	u, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if u == nil {
		uerr := domain.Unauthorized(domain.ErrPrincipalNotFound)
		s.fail(ctx, telemetry.ActionVerify, claims.Subject, fp, uerr)
		return nil, uerr
	}
	if !u.IsActive {
		uerr := domain.Unauthorized(domain.ErrPrincipalInactive)
		s.fail(ctx, telemetry.ActionVerify, u.ID, fp, uerr)
		return nil, uerr
	}
	if s.cfg.TrackSessionActivity {
		saved, err := s.recordLogin(ctx, u.ID)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				s.fail(ctx, telemetry.ActionVerify, u.ID, fp, err)
			}
			return nil, err
		}
		u = saved
	}
	s.succeed(ctx, telemetry.ActionVerify, u.ID, fp)
	return u, nil
}

// Logout acknowledges a logout. Tokens are stateless and stay valid until expiry.
func (s *AuthService) Logout(ctx context.Context, u *domain.User) {
	if u == nil {
		return
	}
	s.log.InfoContext(ctx, "auth.logout", "user_id", u.ID)
	s.succeed(ctx, telemetry.ActionLogout, u.ID, "")
}

// ChangePassword replaces the password of u after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, u *domain.User, current, next string) error {
	if u == nil {
		return domain.Unauthorized(domain.ErrPrincipalNotFound)
	}
	if current == "" {
		return &domain.ValidationError{Field: "current_password", Msg: "current password is required"}
	}
	if err := domain.ValidatePassword(next); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			ve.Field = "new_password"
		}
		return err
	}
	record, err := s.users.FindByID(ctx, u.ID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.Unauthorized(domain.ErrPrincipalNotFound)
	}
	if !record.HasPassword() || !s.hasher.Verify(ctx, current, record.PasswordHash) {
		uerr := domain.Unauthorized(domain.ErrSecretMismatch)
		s.fail(ctx, telemetry.ActionPasswordChange, record.ID, "", uerr)
		return uerr
	}
	hash, err := s.hasher.Hash(ctx, security.Raw(next))
	if err != nil {
		return fmt.Errorf("change password: hash: %w", err)
	}
	updated, err := s.users.UpdatePassword(ctx, record.ID, hash, u.ID, s.now().UTC())
	if err != nil {
		return err
	}
	if updated == nil {
		uerr := domain.Unauthorized(domain.ErrPrincipalInactive)
		s.fail(ctx, telemetry.ActionPasswordChange, record.ID, "", uerr)
		return uerr
	}
	s.log.InfoContext(ctx, "auth.password_change.ok", "user_id", record.ID)
	s.succeed(ctx, telemetry.ActionPasswordChange, record.ID, "")
	return nil
}

// GetUser returns the record for id or domain.ErrNotFound.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (s *AuthService) issue(u *domain.User) (*AuthResult, error) {
	token, claims, err := s.tokens.Issue(security.Claims{
		Subject:  u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     string(u.Role),
	}, s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{
		AccessToken: token,
		User:        u.Sanitize(),
		ExpiresIn:   int64(claims.ExpiresAt.Sub(claims.IssuedAt) / time.Second),
	}, nil
}

// succeed and fail emit the outcome of one flow. Strategy is set when a guard
// authenticated the caller.
func (s *AuthService) succeed(ctx context.Context, action, userID, fingerprint string) {
	telemetry.EmitAsync(s.events, telemetry.AuthEvent{
		Action:           action,
		Success:          true,
		UserID:           userID,
		Strategy:         strategy.StrategyFrom(ctx),
		TokenFingerprint: fingerprint,
		At:               s.now().UTC(),
	})
}

func (s *AuthService) fail(ctx context.Context, action, userID, fingerprint string, err error) {
	reason := FailureReason(err)
	if reason == "store_unavailable" || reason == "internal" {
		s.log.ErrorContext(ctx, "auth."+action+".fail", "reason", reason, "err", err)
	} else {
		s.log.InfoContext(ctx, "auth."+action+".fail", "reason", reason)
	}
	telemetry.EmitAsync(s.events, telemetry.AuthEvent{
		Action:           action,
		UserID:           userID,
		Reason:           reason,
		Strategy:         strategy.StrategyFrom(ctx),
		TokenFingerprint: fingerprint,
		At:               s.now().UTC(),
	})
}

// FailureReason classifies err into a short, non-sensitive label for logs and events.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrPrincipalNotFound):
		return "principal_not_found"
	case errors.Is(err, domain.ErrPrincipalInactive):
		return "principal_inactive"
	case errors.Is(err, domain.ErrSecretMismatch):
		return "secret_mismatch"
	case errors.Is(err, domain.ErrNoSecret):
		return "no_secret"
	case errors.Is(err, domain.ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, domain.ErrBadCredentials):
		return "bad_credentials"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, security.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, security.ErrTokenTampered):
		return "token_invalid"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "internal"
}
