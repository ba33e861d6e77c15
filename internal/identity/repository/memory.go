package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"happyday/backend/internal/identity/domain"
)

// MemoryRepository keeps records in process memory. It backs local development when
// no database is configured and the service tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byUsername map[string]string
	byEmail    map[string]string
	now        func() time.Time
}

// NewMemoryRepository returns an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*domain.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		now:        time.Now,
	}
}

func (r *MemoryRepository) FindByIdentifier(ctx context.Context, value string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "users.find_by_identifier", Err: err}
	}
	if value == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[value]
	if !ok {
		id, ok = r.byEmail[strings.ToLower(value)]
	}
	if !ok {
		return nil, nil
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "users.find_by_id", Err: err}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(u), nil
}

func (r *MemoryRepository) Save(ctx context.Context, u *domain.User) (*domain.User, error) {
	const op = "users.save"
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: op, Err: err}
	}
	next := clone(u)
	if err := prepare(next, r.now().UTC()); err != nil {
		return nil, err
	}
	emailKey := strings.ToLower(next.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if next.Username != "" {
		if owner, ok := r.byUsername[next.Username]; ok && owner != next.ID {
			return nil, &domain.ConflictError{Op: op, Field: "username"}
		}
	}
	if next.Email != "" {
		if owner, ok := r.byEmail[emailKey]; ok && owner != next.ID {
			return nil, &domain.ConflictError{Op: op, Field: "email"}
		}
	}

	if prev, ok := r.byID[next.ID]; ok {
		next.CreatedAt = prev.CreatedAt
		if prev.LastLogin != nil && (next.LastLogin == nil || next.LastLogin.Before(*prev.LastLogin)) {
			t := *prev.LastLogin
			next.LastLogin = &t
		}
		delete(r.byUsername, prev.Username)
		delete(r.byEmail, strings.ToLower(prev.Email))
	}
	r.byID[next.ID] = next
	if next.Username != "" {
		r.byUsername[next.Username] = next.ID
	}
	if next.Email != "" {
		r.byEmail[emailKey] = next.ID
	}
	return clone(next), nil
}

func (r *MemoryRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) (*domain.User, error) {
	return r.update(ctx, "users.touch_last_login", id, func(u *domain.User) {
		u.TouchLogin(at)
		u.UpdatedAt = at.UTC()
	})
}

func (r *MemoryRepository) UpdatePassword(ctx context.Context, id, hash, updatedBy string, at time.Time) (*domain.User, error) {
	if hash == "" {
		return nil, &domain.ValidationError{Field: "password_hash", Msg: "hash is required"}
	}
	return r.update(ctx, "users.update_password", id, func(u *domain.User) {
		u.PasswordHash = hash
		u.UpdatedBy = updatedBy
		u.UpdatedAt = at.UTC()
	})
}

// update applies fn to the stored active record for id under the write lock.
func (r *MemoryRepository) update(ctx context.Context, op, id string, fn func(*domain.User)) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: op, Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || !u.IsActive {
		return nil, nil
	}
	fn(u)
	return clone(u), nil
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	c.DateOfBirth = cloneTime(u.DateOfBirth)
	c.LastLogin = cloneTime(u.LastLogin)
	c.DataRetentionUntil = cloneTime(u.DataRetentionUntil)
	c.AnonymizationDate = cloneTime(u.AnonymizationDate)
	c.EncryptedPersonalData = slices.Clone(u.EncryptedPersonalData)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
