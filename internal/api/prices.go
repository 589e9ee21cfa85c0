package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oiltrading/backoffice/internal/marketdata"
)

const maxWorkbookBytes = 32 << 20

// PriceHandler accepts benchmark price workbooks.
type PriceHandler struct {
	importer *marketdata.Importer
}

func NewPriceHandler(importer *marketdata.Importer) *PriceHandler {
	return &PriceHandler{importer: importer}
}

func (h *PriceHandler) Routes(r chi.Router) {
	r.Post("/prices/import", h.Import)
}

// Import handles POST /api/v1/prices/import with the workbook as the raw
// request body. ?source= labels the quotes.
func (h *PriceHandler) Import(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	body := http.MaxBytesReader(w, r.Body, maxWorkbookBytes)
	res, err := h.importer.Import(r.Context(), body, source)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
