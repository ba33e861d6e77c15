// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// DevJWTSecret signs tokens outside production when JWT_SECRET is unset. Production
// refuses to start with it.
const DevJWTSecret = "happyday-development-secret-do-not-use-in-production"

// minProductionSecretLen is the minimum HMAC secret length accepted in production.
const minProductionSecretLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address the HTTP API listens on (e.g. :3001).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store outside production.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MigrateOnStart applies pending migrations before serving.
	MigrateOnStart bool `mapstructure:"MIGRATE_ON_START"`

	// JWTSecret is the HS256 signing secret. Ignored when a key pair is set.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTTTL is the access token lifetime (e.g. "24h").
	JWTTTL string `mapstructure:"JWT_TTL"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// HashMaxConcurrency bounds concurrent bcrypt operations; 0 disables the bound.
	HashMaxConcurrency int `mapstructure:"HASH_MAX_CONCURRENCY"`
	// TrackSessionActivity records last_login on every verified token.
	TrackSessionActivity bool `mapstructure:"TRACK_SESSION_ACTIVITY"`
	// HTTPMaxBodyBytes bounds JSON request bodies.
	HTTPMaxBodyBytes int64 `mapstructure:"HTTP_MAX_BODY_BYTES"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTelEndpoint is the OTLP gRPC collector (host:port or URL). Empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure disables TLS to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("HTTP_ADDR", ":3001")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "happyday-auth")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("HASH_MAX_CONCURRENCY", 4)
	v.SetDefault("TRACK_SESSION_ACTIVITY", true)
	v.SetDefault("HTTP_MAX_BODY_BYTES", 1<<20)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and the production requirements.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.HashMaxConcurrency < 0 {
		return errors.New("config: HASH_MAX_CONCURRENCY must not be negative")
	}
	if c.HTTPMaxBodyBytes <= 0 {
		return errors.New("config: HTTP_MAX_BODY_BYTES must be positive")
	}
	if d, err := time.ParseDuration(c.JWTTTL); err != nil || d <= 0 {
		return fmt.Errorf("config: JWT_TTL %q is not a positive duration", c.JWTTTL)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}

	if !c.IsProduction() {
		return nil
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}
	if c.HasKeyPair() {
		return nil
	}
	if c.JWTSecret == "" || c.JWTSecret == DevJWTSecret {
		return errors.New("config: JWT_SECRET or a JWT key pair must be set when APP_ENV=production")
	}
	if len(c.JWTSecret) < minProductionSecretLen {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes when APP_ENV=production", minProductionSecretLen)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HasKeyPair reports whether tokens are signed with an asymmetric key pair.
func (c *Config) HasKeyPair() bool {
	return c.JWTPrivateKey != "" && c.JWTPublicKey != ""
}

// SigningSecret returns JWTSecret, or DevJWTSecret when it is unset outside production.
func (c *Config) SigningSecret() []byte {
	if c.JWTSecret == "" && !c.IsProduction() {
		return []byte(DevJWTSecret)
	}
	return []byte(c.JWTSecret)
}

// TokenTTL parses JWTTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// SlogLevel returns the configured log level, info if unparsable.
func (c *Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return l, nil
}
