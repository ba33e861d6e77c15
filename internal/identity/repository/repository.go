// Package repository persists identity records. Implementations enforce username and
// email uniqueness atomically inside Save.
package repository

import (
	"context"
	"time"

	"happyday/backend/internal/identity/domain"
)

// Repository is the credential store.
type Repository interface {
	// FindByIdentifier returns the record whose username equals value or whose email
	// equals value ignoring case, or nil if none.
	FindByIdentifier(ctx context.Context, value string) (*domain.User, error)
	// FindByID returns the record for id, or nil if not found.
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Save inserts u or updates the record with the same id and returns the persisted
	// state. A taken username or email yields *domain.ConflictError.
	Save(ctx context.Context, u *domain.User) (*domain.User, error)
	// TouchLastLogin advances last_login of an active record to at, never moving it
	// backwards, and returns the persisted state. No other column is written. It
	// returns nil when id is unknown or the record is inactive.
	TouchLastLogin(ctx context.Context, id string, at time.Time) (*domain.User, error)
	// UpdatePassword replaces the password hash of an active record. It returns nil
	// when id is unknown or the record is inactive.
	UpdatePassword(ctx context.Context, id, hash, updatedBy string, at time.Time) (*domain.User, error)
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func prepare(u *domain.User, now time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	return nil
}
