package security

import (
	"crypto"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrTokenExpired is returned for a well-formed, correctly signed token whose
	// expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenTampered covers every other verification failure: malformed input, bad
	// signature, unexpected algorithm or issuer, missing claims.
	ErrTokenTampered = errors.New("token invalid")
)

// Claims is the fixed claim set carried by an access token. Times have second precision.
type Claims struct {
	Subject   string
	Email     string
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// TokenCodec issues and verifies signed access tokens. It signs with HS256 and a
// shared secret, or with RS256/ES256 when built from a key pair.
type TokenCodec struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewHMACCodec returns a codec signing with HS256. secret must not be empty.
func NewHMACCodec(secret []byte, issuer string, ttl time.Duration) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	key := append([]byte(nil), secret...)
	return newCodec(jwt.SigningMethodHS256, key, key, issuer, ttl), nil
}

// NewKeyPairCodec returns a codec signing with the private key; the algorithm
// follows the key type.
func NewKeyPairCodec(priv crypto.Signer, pub crypto.PublicKey, issuer string, ttl time.Duration) (*TokenCodec, error) {
	if priv == nil || pub == nil {
		return nil, ErrInvalidKey
	}
	method, err := signingMethodFor(pub)
	if err != nil {
		return nil, err
	}
	if m, err := signingMethodFor(priv.Public()); err != nil || m != method {
		return nil, ErrInvalidKey
	}
	return newCodec(method, priv, pub, issuer, ttl), nil
}

func newCodec(method jwt.SigningMethod, signKey, verifyKey any, issuer string, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithClock returns a copy of c that reads the current time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL is the lifetime applied when Issue is called with ttl <= 0.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Alg is the JWT algorithm name used for signing.
func (c *TokenCodec) Alg() string { return c.method.Alg() }

// Issue signs claims with a lifetime of ttl (the codec default when ttl <= 0). It
// returns the token and the claims as encoded, with IssuedAt and ExpiresAt filled in.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, Claims, error) {
	if claims.Subject == "" {
		return "", Claims{}, errors.New("security: token subject is required")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now().UTC().Truncate(time.Second)
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(ttl).Truncate(time.Second)

	ac := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		Email:    claims.Email,
		Username: claims.Username,
		Role:     claims.Role,
	}
	token, err := jwt.NewWithClaims(c.method, ac).SignedString(c.signKey)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
// The only errors are ErrTokenExpired and ErrTokenTampered.
func (c *TokenCodec) Verify(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrTokenTampered
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	var ac accessClaims
	parsed, err := parser.ParseWithClaims(token, &ac, func(*jwt.Token) (any, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenTampered
	}
	if !parsed.Valid || ac.Subject == "" || ac.IssuedAt == nil {
		return Claims{}, ErrTokenTampered
	}
	return Claims{
		Subject:   ac.Subject,
		Email:     ac.Email,
		Username:  ac.Username,
		Role:      ac.Role,
		IssuedAt:  ac.IssuedAt.Time.UTC(),
		ExpiresAt: ac.ExpiresAt.Time.UTC(),
	}, nil
}
