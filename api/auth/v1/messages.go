package authv1

import "happyday/backend/internal/identity/domain"

type RegisterRequest struct {
	Username       string `json:"username,omitempty"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	Gender         string `json:"gender,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	PrivacyConsent bool   `json:"privacy_consent"`
	TermsAccepted  bool   `json:"terms_accepted"`
}

type LoginRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

type CreateAnonymousRequest struct{}

// AuthResponse is returned by every RPC that issues a token. ExpiresIn is in seconds.
type AuthResponse struct {
	AccessToken string         `json:"access_token"`
	User        domain.Profile `json:"user"`
	ExpiresIn   int64          `json:"expires_in"`
}

type VerifyTokenRequest struct {
	Token string `json:"token"`
}

type VerifyTokenResponse struct {
	Valid bool           `json:"valid"`
	User  domain.Profile `json:"user"`
}

// RefreshRequest carries nothing; the caller is identified by its bearer token.
type RefreshRequest struct{}

type MeRequest struct{}

type MeResponse struct {
	User domain.Profile `json:"user"`
}
