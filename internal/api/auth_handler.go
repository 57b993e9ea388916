package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/premunia/leadline/internal/apperr"
	"github.com/premunia/leadline/internal/auth"
	"github.com/premunia/leadline/internal/metrics"
	"github.com/premunia/leadline/internal/user"
)

// authHandler groups authentication and account HTTP handlers.
type authHandler struct {
	users   UserService
	metrics *metrics.Metrics
}

func newAuthHandler(users UserService, m *metrics.Metrics) *authHandler {
	return &authHandler{users: users, metrics: m}
}

// Signup handles POST /auth/signup.
func (h *authHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req user.SignupInput
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.users.Signup(r.Context(), req)
	if err != nil {
		h.metrics.IncAuthFailure("signup")
		writeAppError(w, r, err)
		return
	}
	h.metrics.IncAuthSuccess("signup")
	writeJSON(w, http.StatusCreated, sess)
}

// Signin handles POST /auth/signin.
func (h *authHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req user.SigninInput
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.users.Signin(r.Context(), req)
	if err != nil {
		h.metrics.IncAuthFailure("signin")
		writeAppError(w, r, err)
		return
	}
	h.metrics.IncAuthSuccess("signin")
	writeJSON(w, http.StatusOK, sess)
}

// Me handles GET /auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Me(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u})
}

// SetRole handles PUT /users/{id}/role.
func (h *authHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role == "" {
		writeAppError(w, r, apperr.Validation("Role is required"))
		return
	}

	id := chi.URLParam(r, "id")
	u, err := h.users.SetRole(r.Context(), id, req.Role)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "set_role", "user", id, "role", req.Role)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u})
}
