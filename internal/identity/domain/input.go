package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// DateLayout is the wire format of date_of_birth.
const DateLayout = "2006-01-02"

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
	// bcrypt only reads the first 72 bytes of a secret.
	maxPasswordLen = 72
	maxNameLen     = 100
	maxEmailLen    = 254
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	phoneRegex    = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
)

// passwordSymbols are the characters that satisfy the "special character" class.
const passwordSymbols = "@$!%*?&"

// RegisterInput is the registration request body.
type RegisterInput struct {
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

// Normalize trims surrounding whitespace from every free-text field. Passwords are left alone.
func (in *RegisterInput) Normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	in.Gender = strings.TrimSpace(in.Gender)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
}

// Validate checks structure and consent. now bounds date_of_birth.
func (in *RegisterInput) Validate(now time.Time) error {
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if in.Username != "" {
		if err := ValidateUsername(in.Username); err != nil {
			return err
		}
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.FirstName) > maxNameLen {
		return &ValidationError{Field: "first_name", Msg: "must be at most 100 characters"}
	}
	if utf8.RuneCountInString(in.LastName) > maxNameLen {
		return &ValidationError{Field: "last_name", Msg: "must be at most 100 characters"}
	}
	if in.DateOfBirth != "" {
		if _, err := ParseDateOfBirth(in.DateOfBirth, now); err != nil {
			return err
		}
	}
	if in.Gender != "" && !Gender(in.Gender).Valid() {
		return &ValidationError{Field: "gender", Msg: "must be one of male, female, other, prefer_not_to_say"}
	}
	if in.PhoneNumber != "" && !phoneRegex.MatchString(in.PhoneNumber) {
		return &ValidationError{Field: "phone_number", Msg: "invalid phone number"}
	}
	if !in.PrivacyConsent {
		return &ValidationError{Field: "privacy_consent", Msg: "privacy policy must be accepted"}
	}
	if !in.TermsAccepted {
		return &ValidationError{Field: "terms_accepted", Msg: "terms of service must be accepted"}
	}
	return nil
}

// LoginInput is the login request body. Exactly one of Email or Username is used;
// Email wins when both are set.
type LoginInput struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// Identifier returns the lookup key for the login.
func (in *LoginInput) Identifier() string {
	if e := strings.TrimSpace(in.Email); e != "" {
		return e
	}
	return strings.TrimSpace(in.Username)
}

// Validate checks that an identifier and a password are present and that a given
// email is well formed.
func (in *LoginInput) Validate() error {
	if in.Identifier() == "" {
		return &ValidationError{Field: "email", Msg: "email or username is required"}
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		if err := ValidateEmail(email); err != nil {
			return err
		}
	}
	if in.Password == "" {
		return &ValidationError{Field: "password", Msg: "password is required"}
	}
	return nil
}

// ValidateEmail checks presence, length and format.
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Msg: "email is required"}
	}
	if len(email) > maxEmailLen || !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Msg: "invalid email format"}
	}
	return nil
}

// ValidateUsername checks length and charset.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return &ValidationError{Field: "username", Msg: "must be between 3 and 50 characters"}
	}
	if !usernameRegex.MatchString(username) {
		return &ValidationError{Field: "username", Msg: "may only contain letters, numbers and underscores"}
	}
	return nil
}

// ValidatePassword enforces the strength policy: 8 to 72 bytes with at least one
// lowercase letter, one uppercase letter, one digit and one of @$!%*?&.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return &ValidationError{Field: "password", Msg: "must be at least 8 characters"}
	}
	if len(password) > maxPasswordLen {
		return &ValidationError{Field: "password", Msg: "must be at most 72 bytes"}
	}
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !lower || !upper || !digit || !symbol {
		return &ValidationError{
			Field: "password",
			Msg:   "must contain uppercase, lowercase, number and special character",
		}
	}
	return nil
}

// ParseDateOfBirth parses an ISO date and rejects dates after now.
func ParseDateOfBirth(s string, now time.Time) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		// Accept full RFC 3339 timestamps and keep the date part.
		ts, terr := time.Parse(time.RFC3339, s)
		if terr != nil {
			return time.Time{}, &ValidationError{Field: "date_of_birth", Msg: "must be an ISO date (YYYY-MM-DD)"}
		}
		d = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	if d.After(now) {
		return time.Time{}, &ValidationError{Field: "date_of_birth", Msg: "must not be in the future"}
	}
	return d, nil
}
