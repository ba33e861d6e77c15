package domain

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Transports match these with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("identifier already in use")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStoreUnavailable = errors.New("credential store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
)

// Unauthorized reasons. They are attached for telemetry and never shown to clients.
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalInactive = errors.New("principal inactive")
	ErrSecretMismatch    = errors.New("secret mismatch")
	ErrNoSecret          = errors.New("principal has no secret")
	ErrNoCredentials     = errors.New("no credentials presented")
	ErrBadCredentials    = errors.New("malformed credentials")
)

// ValidationError reports malformed or missing input. Field names the offending input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports that a username or email is already taken.
type ConflictError struct {
	Op    string
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s already in use", e.Op, e.Field)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// UnauthorizedError is returned for every authentication failure. Its message does not
// depend on Reason so callers cannot tell an unknown identifier from a wrong secret.
type UnauthorizedError struct {
	Reason error
}

func (e *UnauthorizedError) Error() string { return "invalid credentials" }

func (e *UnauthorizedError) Unwrap() []error {
	if e.Reason == nil {
		return []error{ErrUnauthorized}
	}
	return []error{ErrUnauthorized, e.Reason}
}

// Unauthorized wraps reason in an UnauthorizedError.
func Unauthorized(reason error) error {
	return &UnauthorizedError{Reason: reason}
}

// StoreError wraps an infrastructure failure of the credential store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrStoreUnavailable.Error()
	}
	return e.Op + ": " + ErrStoreUnavailable.Error() + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStoreUnavailable}
	}
	return []error{ErrStoreUnavailable, e.Err}
}

// UnauthorizedReason returns the internal reason of an authentication failure, or nil.
func UnauthorizedReason(err error) error {
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return nil
}
