package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/premunia/leadline/internal/lead"
	"github.com/premunia/leadline/internal/metrics"
)

// leadsHandler groups lead HTTP handlers.
type leadsHandler struct {
	leads   LeadService
	metrics *metrics.Metrics
}

func newLeadsHandler(leads LeadService, m *metrics.Metrics) *leadsHandler {
	return &leadsHandler{leads: leads, metrics: m}
}

// Create handles POST /leads. It is public: this is the landing page form.
func (h *leadsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req lead.CreateLeadInput
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.leads.Create(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.metrics.IncLeadCreated()
	writeJSON(w, http.StatusCreated, map[string]interface{}{"lead": l})
}

// List handles GET /leads.
func (h *leadsHandler) List(w http.ResponseWriter, r *http.Request) {
	leads, err := h.leads.List(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if leads == nil {
		leads = []*lead.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leads": leads})
}

// Get handles GET /leads/{id}.
func (h *leadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.leads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lead": l})
}

// Update handles PUT /leads/{id}.
func (h *leadsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req lead.UpdateLeadInput
	if !decodeBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	l, err := h.leads.Update(r.Context(), id, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	detail := []any{}
	if req.Status != nil {
		detail = append(detail, "status", *req.Status)
	}
	auditLog(r, "update", "lead", id, detail...)
	writeJSON(w, http.StatusOK, map[string]interface{}{"lead": l})
}

// Delete handles DELETE /leads/{id}.
func (h *leadsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.leads.Delete(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "delete", "lead", id)
	writeJSON(w, http.StatusOK, struct{}{})
}
