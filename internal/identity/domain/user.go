// Package domain holds the identity record, its invariants, the request inputs
// accepted by the auth service, and the error taxonomy shared by every layer.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Role is a coarse authorization tag. It is not a permission model.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Gender string

const (
	GenderMale           Gender = "male"
	GenderFemale         Gender = "female"
	GenderOther          Gender = "other"
	GenderPreferNotToSay Gender = "prefer_not_to_say"
)

// Valid reports whether g is one of the accepted gender options. Empty is not valid;
// callers treat an empty gender as "not provided".
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderPreferNotToSay:
		return true
	}
	return false
}

// User is the identity record. Empty strings mean "not set" and are stored as NULL.
type User struct {
	ID       string
	Username string
	Email    string
	// PasswordHash is bcrypt output or empty for identities that never set a password.
	PasswordHash string

	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Gender      Gender
	PhoneNumber string

	IsAnonymous bool
	IsVerified  bool
	IsActive    bool
	Role        Role

	PrivacyConsent bool
	TermsAccepted  bool

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	// EncryptedPersonalData is an opaque blob; it never leaves the core.
	EncryptedPersonalData json.RawMessage
	CreatedBy             string
	UpdatedBy             string

	DataRetentionUntil     *time.Time
	AnonymizationRequested bool
	AnonymizationDate      *time.Time
}

// Validate checks the record invariants that must hold before persistence and fills
// in defaults for the role.
func (u *User) Validate() error {
	if u.ID == "" {
		return &ValidationError{Field: "id", Msg: "id is required"}
	}
	if !u.PrivacyConsent {
		return &ValidationError{Field: "privacy_consent", Msg: "privacy policy must be accepted"}
	}
	if !u.TermsAccepted {
		return &ValidationError{Field: "terms_accepted", Msg: "terms of service must be accepted"}
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return &ValidationError{Field: "role", Msg: "unknown role"}
	}
	if u.Gender != "" && !u.Gender.Valid() {
		return &ValidationError{Field: "gender", Msg: "unknown gender option"}
	}
	return nil
}

// HasPassword reports whether a credential hash is stored.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// TouchLogin records a successful authentication at now. last_login never moves
// backwards, so a stale clock leaves the previous value in place.
func (u *User) TouchLogin(now time.Time) {
	now = now.UTC()
	if u.LastLogin != nil && !now.After(*u.LastLogin) {
		return
	}
	u.LastLogin = &now
	u.UpdatedAt = now
}

// FullName returns "first last" when both are set, otherwise the first non-empty
// of first name, last name, username and email.
func (u *User) FullName() string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	if first != "" && last != "" {
		return first + " " + last
	}
	for _, s := range []string{first, last, u.Username, u.Email} {
		if s != "" {
			return s
		}
	}
	return ""
}

// IsProfileComplete reports whether the principal has filled in the fields required
// for a full (non-guest) profile.
func (u *User) IsProfileComplete() bool {
	return u.Email != "" &&
		u.FirstName != "" &&
		u.LastName != "" &&
		u.PrivacyConsent &&
		u.TermsAccepted
}
