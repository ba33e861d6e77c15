// Package telemetry defines the auth event stream exported alongside traces and metrics.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Auth actions.
const (
	ActionRegister       = "register"
	ActionLogin          = "login"
	ActionAnonymous      = "anonymous"
	ActionVerify         = "verify"
	ActionRefresh        = "refresh"
	ActionLogout         = "logout"
	ActionPasswordChange = "password_change"
)

// AuthEvent is one authentication outcome. It never carries secrets; tokens appear
// only as a fingerprint.
type AuthEvent struct {
	Action   string
	Success  bool
	UserID   string
	Reason   string
	Strategy string
	// TokenFingerprint identifies the bearer token involved, if any.
	TokenFingerprint string
	At               time.Time
}

// Outcome is "success" or "failure".
func (e AuthEvent) Outcome() string {
	if e.Success {
		return "success"
	}
	return "failure"
}

// EventEmitter exports auth events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event AuthEvent) error
}

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting
// down the OTel providers, so in-flight async emits can finish.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine detached from the request context.
func EmitAsync(emitter EventEmitter, event AuthEvent) {
	if emitter == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			slog.Warn("telemetry.emit.fail", "action", event.Action, "err", err)
		}
	}()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, AuthEvent) error { return nil }
