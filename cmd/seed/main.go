// seed creates the first admin account. Admins can read any record through the
// lookup routes; registration only ever creates regular users. Idempotent: an
// existing account is promoted to admin, an existing admin is left alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"happyday/backend/internal/config"
	"happyday/backend/internal/db"
	"happyday/backend/internal/identity/domain"
	"happyday/backend/internal/identity/repository"
	"happyday/backend/internal/security"
)

// seedCreator is recorded in created_by/updated_by.
const seedCreator = "seed"

type adminInput struct {
	Email    string
	Username string
	Password string
}

// result describes what seedAdmin did.
type result string

const (
	resultCreated  result = "created"
	resultPromoted result = "promoted"
	resultSkipped  result = "skipped"
)

func main() {
	email := flag.String("email", "", "admin email (required)")
	username := flag.String("username", "", "admin username (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		log.Fatal("SEED_ADMIN_PASSWORD is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := repository.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost, 1)
	res, err := seedAdmin(ctx, repo, hasher, adminInput{Email: *email, Username: *username, Password: password}, time.Now().UTC())
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("seed: admin %s %s\n", *email, res)
}

func seedAdmin(ctx context.Context, repo repository.Repository, hasher *security.Hasher, in adminInput, now time.Time) (result, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if err := domain.ValidateEmail(in.Email); err != nil {
		return "", err
	}
	if in.Username != "" {
		if err := domain.ValidateUsername(in.Username); err != nil {
			return "", err
		}
	}

	existing, err := repo.FindByIdentifier(ctx, in.Email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if existing.Role == domain.RoleAdmin {
			return resultSkipped, nil
		}
		existing.Role = domain.RoleAdmin
		existing.UpdatedAt = now
		existing.UpdatedBy = seedCreator
		if _, err := repo.Save(ctx, existing); err != nil {
			return "", err
		}
		return resultPromoted, nil
	}

	if err := domain.ValidatePassword(in.Password); err != nil {
		return "", err
	}
	hash, err := hasher.Hash(ctx, security.Raw(in.Password))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		ID:             uuid.NewString(),
		Username:       in.Username,
		Email:          in.Email,
		PasswordHash:   hash,
		IsVerified:     true,
		IsActive:       true,
		Role:           domain.RoleAdmin,
		PrivacyConsent: true,
		TermsAccepted:  true,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      seedCreator,
		UpdatedBy:      seedCreator,
	}
	if _, err := repo.Save(ctx, u); err != nil {
		return "", err
	}
	return resultCreated, nil
}
