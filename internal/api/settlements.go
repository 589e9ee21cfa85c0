package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/oiltrading/backoffice/internal/export"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/settlement"
)

// SettlementHandler serves settlement computation, lifecycle and charges.
type SettlementHandler struct {
	svc             *settlement.Service
	defaultCurrency string
}

// NewSettlementHandler creates the handler. defaultCurrency fills requests
// that name no settlement currency.
func NewSettlementHandler(svc *settlement.Service, defaultCurrency string) *SettlementHandler {
	return &SettlementHandler{svc: svc, defaultCurrency: defaultCurrency}
}

// Routes mounts the settlement endpoints on r.
func (h *SettlementHandler) Routes(r chi.Router) {
	r.Post("/settlements", h.Compute)
	r.Get("/settlements/{id}", h.Get)
	r.Post("/settlements/{id}/transitions", h.Transition)
	r.Post("/settlements/{id}/charges", h.AddCharge)
	r.Post("/settlements/{id}/charges/template", h.ApplyTemplate)
	r.Put("/settlements/{id}/charges/{chargeID}", h.UpdateCharge)
	r.Delete("/settlements/{id}/charges/{chargeID}", h.RemoveCharge)
	r.Get("/settlements/{id}/statement.pdf", h.StatementPDF)
	r.Get("/settlements/{id}/statement.xlsx", h.StatementXLSX)
	r.Get("/contracts/{contractID}/settlements", h.ListByContract)
}

// ChargeRequest is the body of charge add and update calls.
type ChargeRequest struct {
	Version int64                  `json:"version"`
	Charge  model.SettlementCharge `json:"charge"`
	By      string                 `json:"by"`
}

// TemplateRequest seeds charges from a template.
type TemplateRequest struct {
	Version int64                    `json:"version"`
	Items   []model.SettlementCharge `json:"items"`
	All     bool                     `json:"all"` // include items not marked include_by_default
	By      string                   `json:"by"`
}

// Compute handles POST /api/v1/settlements. A body without settlement_id
// creates a Draft (201); with one it recomputes that settlement (200).
func (h *SettlementHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req settlement.Request
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SettlementCurrency) == "" {
		req.SettlementCurrency = h.defaultCurrency
	}
	creating := req.SettlementID == ""

	st, err := h.svc.ComputeSettlement(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	status := http.StatusOK
	if creating {
		status = http.StatusCreated
	}
	writeJSON(w, status, st)
}

// Get handles GET /api/v1/settlements/{id}.
func (h *SettlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetSettlement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListByContract handles GET /api/v1/contracts/{contractID}/settlements.
func (h *SettlementHandler) ListByContract(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListContractSettlements(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.ContractSettlement{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Transition handles POST /api/v1/settlements/{id}/transitions.
func (h *SettlementHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req settlement.TransitionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Target == "" {
		writeError(w, "target_status is required", http.StatusBadRequest)
		return
	}
	st, err := h.svc.TransitionSettlementStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// AddCharge handles POST /api/v1/settlements/{id}/charges.
func (h *SettlementHandler) AddCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := h.svc.AddCharge(r.Context(), chi.URLParam(r, "id"), req.Version, req.Charge, req.By)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// UpdateCharge handles PUT /api/v1/settlements/{id}/charges/{chargeID}.
func (h *SettlementHandler) UpdateCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := h.svc.UpdateCharge(r.Context(), chi.URLParam(r, "id"), req.Version, chi.URLParam(r, "chargeID"), req.Charge, req.By)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RemoveCharge handles DELETE /api/v1/settlements/{id}/charges/{chargeID}
// with ?version= and ?by= query parameters.
func (h *SettlementHandler) RemoveCharge(w http.ResponseWriter, r *http.Request) {
	version, err := versionParam(r)
	if err != nil {
		writeError(w, "version must be an integer", http.StatusBadRequest)
		return
	}
	st, err := h.svc.RemoveCharge(r.Context(), chi.URLParam(r, "id"), version, chi.URLParam(r, "chargeID"), r.URL.Query().Get("by"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ApplyTemplate handles POST /api/v1/settlements/{id}/charges/template.
func (h *SettlementHandler) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := h.svc.ApplyChargeTemplate(r.Context(), chi.URLParam(r, "id"), req.Version, req.Items, req.All, req.By)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// StatementPDF handles GET /api/v1/settlements/{id}/statement.pdf.
func (h *SettlementHandler) StatementPDF(w http.ResponseWriter, r *http.Request) {
	h.statement(w, r, "application/pdf", "pdf", export.BuildStatementPDF)
}

// StatementXLSX handles GET /api/v1/settlements/{id}/statement.xlsx.
func (h *SettlementHandler) StatementXLSX(w http.ResponseWriter, r *http.Request) {
	h.statement(w, r, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", export.BuildStatementXLSX)
}

func (h *SettlementHandler) statement(w http.ResponseWriter, r *http.Request, contentType, ext string, build func(*model.ContractSettlement) ([]byte, error)) {
	st, err := h.svc.GetSettlement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	doc, err := build(st)
	if err != nil {
		fail(w, r, err)
		return
	}
	slog.Info("settlement statement exported", "id", st.ID, "format", ext, "bytes", len(doc))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="settlement-%s.%s"`, st.ID, ext))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
