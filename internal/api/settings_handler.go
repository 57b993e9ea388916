package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/premunia/leadline/internal/apperr"
	"github.com/premunia/leadline/internal/auth"
	"github.com/premunia/leadline/internal/settings"
)

// settingsHandler serves site settings and the SMTP configuration.
type settingsHandler struct {
	settings SettingsService
}

func newSettingsHandler(s SettingsService) *settingsHandler {
	return &settingsHandler{settings: s}
}

// GetAll handles GET /settings.
func (h *settingsHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.GetAll(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"settings": all})
}

// Get handles GET /settings/{key}.
func (h *settingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": s.Key, "value": s.Value})
}

// Set handles PUT /settings/{key}. The body is {"value": <any JSON>}.
func (h *settingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Value) == 0 {
		writeAppError(w, r, apperr.Validation("Value is required"))
		return
	}

	key := chi.URLParam(r, "key")
	s, err := h.settings.Set(r.Context(), key, req.Value, auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "set", "setting", key)
	writeJSON(w, http.StatusOK, map[string]interface{}{"setting": s})
}

// SetAll handles PUT /settings. The body maps each key to its new value and
// is saved as one batch.
func (h *settingsHandler) SetAll(w http.ResponseWriter, r *http.Request) {
	var req map[string]json.RawMessage
	if !decodeBody(w, r, &req) {
		return
	}

	all, err := h.settings.SetMany(r.Context(), req, auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	keys := make([]string, 0, len(req))
	for k := range req {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	auditLog(r, "set", "setting", strings.Join(keys, ","))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "settings": all})
}

// GetSMTP handles GET /smtp-config. The view is written unwrapped so the
// back-office form can take its fields directly.
func (h *settingsHandler) GetSMTP(w http.ResponseWriter, r *http.Request) {
	v, err := h.settings.GetSMTP(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetSMTP handles PUT /smtp-config.
func (h *settingsHandler) SetSMTP(w http.ResponseWriter, r *http.Request) {
	var req settings.SMTPConfig
	if !decodeBody(w, r, &req) {
		return
	}

	v, err := h.settings.SetSMTP(r.Context(), req, auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "set", "setting", settings.SMTPKey, "host", v.Host)
	writeJSON(w, http.StatusOK, map[string]interface{}{"smtp": v})
}
