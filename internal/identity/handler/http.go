package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"happyday/backend/internal/identity/domain"
	"happyday/backend/internal/identity/service"
	"happyday/backend/internal/identity/strategy"
)

// APIPrefix is the mount point of the auth routes.
const APIPrefix = "/api/v1/auth"

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// AuthAPI is the subset of the auth service the transports call.
type AuthAPI interface {
	Register(ctx context.Context, in domain.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, in domain.LoginInput) (*service.AuthResult, error)
	CreateAnonymous(ctx context.Context) (*service.AuthResult, error)
	Refresh(ctx context.Context, u *domain.User) (*service.AuthResult, error)
	Logout(ctx context.Context, u *domain.User)
	ChangePassword(ctx context.Context, u *domain.User, current, next string) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Pinger reports store readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler serves the auth API over HTTP.
type HTTPHandler struct {
	svc     AuthAPI
	guard   *strategy.Guard
	bearer  *strategy.Guard
	health  Pinger
	maxBody int64
	log     *slog.Logger
}

// NewHTTPHandler returns a handler. guard protects authenticated routes; /verify only
// accepts its bearer strategy. maxBody <= 0 uses DefaultMaxBodyBytes.
func NewHTTPHandler(svc AuthAPI, guard *strategy.Guard, health Pinger, maxBody int64, log *slog.Logger) *HTTPHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPHandler{
		svc:     svc,
		guard:   guard,
		bearer:  guard.Only("bearer"),
		health:  health,
		maxBody: maxBody,
		log:     log,
	}
}

// Routes returns the mux with every route registered.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+APIPrefix+"/register", h.register)
	mux.HandleFunc("POST "+APIPrefix+"/login", h.login)
	mux.HandleFunc("POST "+APIPrefix+"/anonymous", h.anonymous)
	mux.Handle("GET "+APIPrefix+"/me", h.authenticated(h.guard, h.me))
	mux.Handle("POST "+APIPrefix+"/refresh", h.authenticated(h.guard, h.refresh))
	mux.Handle("POST "+APIPrefix+"/logout", h.authenticated(h.guard, h.logout))
	mux.Handle("GET "+APIPrefix+"/verify", h.authenticated(h.bearer, h.verify))
	mux.Handle("POST "+APIPrefix+"/password", h.authenticated(h.guard, h.changePassword))
	mux.Handle("GET "+APIPrefix+"/users/{id}", h.authenticated(h.guard, h.adminOnly(h.getUser)))
	mux.HandleFunc("GET /healthz", h.healthz)
	return mux
}

// authenticated runs g and stores the principal in the request context.
func (h *HTTPHandler) authenticated(g *strategy.Guard, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, name, err := g.Authenticate(r.Context(), strategy.FromHTTP(r))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(strategy.WithPrincipal(r.Context(), u, name)))
	})
}

func (h *HTTPHandler) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := strategy.PrincipalFrom(r.Context())
		if err := strategy.RequireRole(u, domain.RoleAdmin); err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r)
	}
}

func (h *HTTPHandler) register(w http.ResponseWriter, r *http.Request) {
	var in domain.RegisterInput
	if err := h.decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *HTTPHandler) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginInput
	if err := h.decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) anonymous(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CreateAnonymous(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *HTTPHandler) me(w http.ResponseWriter, r *http.Request) {
	u, _ := strategy.PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, u.Sanitize())
}

func (h *HTTPHandler) refresh(w http.ResponseWriter, r *http.Request) {
	u, _ := strategy.PrincipalFrom(r.Context())
	res, err := h.svc.Refresh(r.Context(), u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *HTTPHandler) logout(w http.ResponseWriter, r *http.Request) {
	u, _ := strategy.PrincipalFrom(r.Context())
	h.svc.Logout(r.Context(), u)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

type verifyResponse struct {
	Valid bool           `json:"valid"`
	User  domain.Profile `json:"user"`
}

func (h *HTTPHandler) verify(w http.ResponseWriter, r *http.Request) {
	u, _ := strategy.PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true, User: u.Sanitize()})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *HTTPHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	var in changePasswordRequest
	if err := h.decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	u, _ := strategy.PrincipalFrom(r.Context())
	if err := h.svc.ChangePassword(r.Context(), u, in.CurrentPassword, in.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Sanitize())
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *HTTPHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.log.WarnContext(r.Context(), "http.healthz.fail", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// errBodyTooLarge is returned by decodeJSON when the body exceeds maxBody.
var errBodyTooLarge = errors.New("request body too large")

// decodeJSON reads exactly one JSON object into dst. Unknown fields are rejected.
func (h *HTTPHandler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &domain.ValidationError{Field: typeErr.Field, Msg: "has the wrong type"}
		}
		return &domain.ValidationError{Field: "body", Msg: "malformed JSON body"}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &domain.ValidationError{Field: "body", Msg: "body must contain a single JSON object"}
	}
	return nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// httpError maps a service error to a status and a client-safe body.
func httpError(err error) (int, errorDetail) {
	var (
		ve *domain.ValidationError
		ce *domain.ConflictError
	)
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, errorDetail{Code: "payload_too_large", Message: err.Error()}
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorDetail{Code: "validation_failed", Message: ve.Msg, Field: ve.Field}
	case errors.As(err, &ce):
		return http.StatusConflict, errorDetail{Code: "conflict", Message: ce.Field + " already in use", Field: ce.Field}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorDetail{Code: "unauthorized", Message: "invalid credentials"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorDetail{Code: "forbidden", Message: "insufficient role"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorDetail{Code: "not_found", Message: "user not found"}
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorDetail{Code: "unavailable", Message: "service temporarily unavailable"}
	}
	return http.StatusInternalServerError, errorDetail{Code: "internal", Message: "internal error"}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := httpError(err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "http.request.fail", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="happyday"`)
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
