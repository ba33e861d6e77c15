package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"happyday/backend/internal/identity/domain"
)

func newUser(id, username, email string) *domain.User {
	return &domain.User{
		ID:             id,
		Username:       username,
		Email:          email,
		IsActive:       true,
		PrivacyConsent: true,
		TermsAccepted:  true,
	}
}

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	saved, err := r.Save(ctx, newUser("u1", "jane", "Jane@Example.com"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Role != domain.RoleUser || saved.CreatedAt.IsZero() {
		t.Errorf("defaults not applied: role=%q created=%v", saved.Role, saved.CreatedAt)
	}

	for _, ident := range []string{"jane", "jane@example.com", "JANE@EXAMPLE.COM"} {
		u, err := r.FindByIdentifier(ctx, ident)
		if err != nil || u == nil || u.ID != "u1" {
			t.Errorf("FindByIdentifier(%q) = %v, %v", ident, u, err)
		}
	}
	// Usernames are case-sensitive.
	if u, _ := r.FindByIdentifier(ctx, "JANE"); u != nil {
		t.Error("username lookup should be case-sensitive")
	}
	if u, err := r.FindByIdentifier(ctx, "nobody"); u != nil || err != nil {
		t.Errorf("absent identifier want nil, nil; got %v, %v", u, err)
	}
	if u, err := r.FindByID(ctx, "missing"); u != nil || err != nil {
		t.Errorf("absent id want nil, nil; got %v, %v", u, err)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	in := newUser("u1", "jane", "jane@example.com")
	if _, err := r.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	in.Email = "changed@example.com"
	got, _ := r.FindByID(ctx, "u1")
	if got.Email != "jane@example.com" {
		t.Error("store shares memory with caller input")
	}
	got.Username = "mallory"
	again, _ := r.FindByID(ctx, "u1")
	if again.Username != "jane" {
		t.Error("store shares memory with returned record")
	}
}

func TestMemoryRepository_Conflicts(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	if _, err := r.Save(ctx, newUser("u1", "jane", "jane@example.com")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tests := []struct {
		name  string
		u     *domain.User
		field string
	}{
		{"same username", newUser("u2", "jane", "other@example.com"), "username"},
		{"same email other case", newUser("u3", "other", "JANE@example.com"), "email"},
	}
	for _, tt := range tests {
		_, err := r.Save(ctx, tt.u)
		var ce *domain.ConflictError
		if !errors.As(err, &ce) || ce.Field != tt.field {
			t.Errorf("%s: want conflict on %s, got %v", tt.name, tt.field, err)
		}
	}
	// Updating the owner keeps its identifiers.
	self := newUser("u1", "jane", "jane@example.com")
	self.FirstName = "Jane"
	if _, err := r.Save(ctx, self); err != nil {
		t.Errorf("update own record: %v", err)
	}
}

func TestMemoryRepository_RenameFreesOldIdentifiers(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	if _, err := r.Save(ctx, newUser("u1", "jane", "jane@example.com")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := r.Save(ctx, newUser("u1", "jane2", "jane2@example.com")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := r.Save(ctx, newUser("u2", "jane", "jane@example.com")); err != nil {
		t.Errorf("old identifiers should be free: %v", err)
	}
}

func TestMemoryRepository_RejectsMissingConsent(t *testing.T) {
	u := newUser("u1", "jane", "jane@example.com")
	u.TermsAccepted = false
	if _, err := NewMemoryRepository().Save(context.Background(), u); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("want ErrValidation, got %v", err)
	}
}

func TestMemoryRepository_LastLoginNeverDecreases(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	later := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	u := newUser("u1", "jane", "")
	u.LastLogin = &later
	if _, err := r.Save(ctx, u); err != nil {
		t.Fatalf("Save: %v", err)
	}
	u.LastLogin = &earlier
	saved, err := r.Save(ctx, u)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !saved.LastLogin.Equal(later) {
		t.Errorf("last_login went backwards: %v", saved.LastLogin)
	}
}

func TestMemoryRepository_ConcurrentRegistrationSameEmail(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Save(ctx, newUser(fmt.Sprintf("u%d", i), "", "race@example.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflicts != n-1 {
		t.Errorf("want 1 success and %d conflicts, got %d and %d", n-1, ok, conflicts)
	}
	if r.Len() != 1 {
		t.Errorf("want 1 record, got %d", r.Len())
	}
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryRepository().FindByID(ctx, "u1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestMemoryRepository_TouchLastLogin(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	u := newUser("u1", "jane", "jane@example.com")
	u.PasswordHash = "$2a$04$old"
	if _, err := r.Save(ctx, u); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := r.TouchLastLogin(ctx, "u1", at)
	if err != nil || got == nil {
		t.Fatalf("TouchLastLogin: %v, %v", got, err)
	}
	if !got.LastLogin.Equal(at) || got.PasswordHash != "$2a$04$old" {
		t.Errorf("unexpected record %+v", got)
	}
	if got, _ := r.TouchLastLogin(ctx, "u1", at.Add(-time.Hour)); !got.LastLogin.Equal(at) {
		t.Errorf("last_login went backwards: %v", got.LastLogin)
	}
	if got, err := r.TouchLastLogin(ctx, "missing", at); got != nil || err != nil {
		t.Errorf("unknown id want nil, nil; got %v, %v", got, err)
	}

	stored, _ := r.FindByID(ctx, "u1")
	stored.IsActive = false
	if _, err := r.Save(ctx, stored); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, err := r.TouchLastLogin(ctx, "u1", at.Add(time.Hour)); got != nil || err != nil {
		t.Errorf("inactive want nil, nil; got %v, %v", got, err)
	}
	if after, _ := r.FindByID(ctx, "u1"); after.IsActive || !after.LastLogin.Equal(at) {
		t.Errorf("inactive record modified: %+v", after)
	}
}

func TestMemoryRepository_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, err := r.Save(ctx, newUser("u1", "jane", "jane@example.com")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := r.UpdatePassword(ctx, "u1", "$2a$04$new", "u1", at)
	if err != nil || got == nil {
		t.Fatalf("UpdatePassword: %v, %v", got, err)
	}
	if got.PasswordHash != "$2a$04$new" || got.UpdatedBy != "u1" || !got.UpdatedAt.Equal(at) {
		t.Errorf("unexpected record %+v", got)
	}
	if _, err := r.UpdatePassword(ctx, "u1", "", "u1", at); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty hash want ErrValidation, got %v", err)
	}

	stored, _ := r.FindByID(ctx, "u1")
	stored.IsActive = false
	if _, err := r.Save(ctx, stored); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, err := r.UpdatePassword(ctx, "u1", "$2a$04$other", "u1", at); got != nil || err != nil {
		t.Errorf("inactive want nil, nil; got %v, %v", got, err)
	}
	if after, _ := r.FindByID(ctx, "u1"); after.PasswordHash != "$2a$04$new" {
		t.Errorf("inactive record modified: %q", after.PasswordHash)
	}
}
