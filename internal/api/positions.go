package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oiltrading/backoffice/internal/model"
)

// PositionSource computes net positions as of a time; a zero time is now.
type PositionSource interface {
	ComputeNetPositions(ctx context.Context, asOf time.Time) ([]model.NetPosition, error)
	ComputeEnhancedNetPositions(ctx context.Context, asOf time.Time) ([]model.EnhancedNetPosition, error)
}

// PositionHandler serves netted positions.
type PositionHandler struct {
	positions PositionSource
}

func NewPositionHandler(positions PositionSource) *PositionHandler {
	return &PositionHandler{positions: positions}
}

func (h *PositionHandler) Routes(r chi.Router) {
	r.Get("/positions", h.List)
	r.Get("/positions/enhanced", h.ListEnhanced)
}

// List handles GET /api/v1/positions?as_of=.
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		writeError(w, "as_of must be YYYY-MM-DD or RFC 3339", http.StatusBadRequest)
		return
	}
	positions, err := h.positions.ComputeNetPositions(r.Context(), asOf)
	if err != nil {
		fail(w, r, err)
		return
	}
	if positions == nil {
		positions = []model.NetPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// ListEnhanced handles GET /api/v1/positions/enhanced?as_of=.
func (h *PositionHandler) ListEnhanced(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		writeError(w, "as_of must be YYYY-MM-DD or RFC 3339", http.StatusBadRequest)
		return
	}
	positions, err := h.positions.ComputeEnhancedNetPositions(r.Context(), asOf)
	if err != nil {
		fail(w, r, err)
		return
	}
	if positions == nil {
		positions = []model.EnhancedNetPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}
