package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oiltrading/backoffice/internal/correlation"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/risk"
)

// RiskHandler serves risk snapshots, stress tests and VaR backtests.
type RiskHandler struct {
	risk      *risk.Service
	positions PositionSource
}

func NewRiskHandler(svc *risk.Service, positions PositionSource) *RiskHandler {
	return &RiskHandler{risk: svc, positions: positions}
}

func (h *RiskHandler) Routes(r chi.Router) {
	r.Post("/risk/metrics", h.Compute)
	r.Get("/risk/metrics/latest", h.Latest)
	r.Post("/risk/stress", h.Stress)
	r.Post("/risk/backtest", h.Backtest)
}

// MetricsRequest asks for a new snapshot. Without positions the current
// book is netted; without correlations they are estimated from prices.
type MetricsRequest struct {
	Positions    []model.NetPosition           `json:"positions"`
	Correlations map[string]map[string]float64 `json:"correlations"`
}

// StressRequest runs one scenario, or every standard scenario when
// Scenario is nil.
type StressRequest struct {
	Positions []model.NetPosition   `json:"positions"`
	Scenario  *model.StressScenario `json:"scenario"`
}

type StressResponse struct {
	Results []model.StressTestResult `json:"results"`
}

type BacktestRequest struct {
	Confidence   float64                     `json:"confidence"`
	Observations []model.BacktestObservation `json:"observations"`
}

// Compute handles POST /api/v1/risk/metrics.
func (h *RiskHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if !decode(w, r, &req) {
		return
	}
	var matrix *correlation.Matrix
	if req.Correlations != nil {
		m, err := correlation.FromNested(req.Correlations)
		if err != nil {
			fail(w, r, err)
			return
		}
		matrix = m
	}
	positions, err := h.book(r.Context(), req.Positions)
	if err != nil {
		fail(w, r, err)
		return
	}
	m, err := h.risk.ComputeRiskMetrics(r.Context(), positions, matrix)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Latest handles GET /api/v1/risk/metrics/latest.
func (h *RiskHandler) Latest(w http.ResponseWriter, r *http.Request) {
	m, err := h.risk.CurrentSnapshot(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Stress handles POST /api/v1/risk/stress.
func (h *RiskHandler) Stress(w http.ResponseWriter, r *http.Request) {
	var req StressRequest
	if !decode(w, r, &req) {
		return
	}
	positions, err := h.book(r.Context(), req.Positions)
	if err != nil {
		fail(w, r, err)
		return
	}

	var results []model.StressTestResult
	if req.Scenario == nil {
		results, err = h.risk.RunStandardStressTests(r.Context(), positions)
	} else {
		var res model.StressTestResult
		res, err = h.risk.RunStressTest(r.Context(), positions, *req.Scenario)
		results = []model.StressTestResult{res}
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StressResponse{Results: results})
}

// Backtest handles POST /api/v1/risk/backtest. Confidence defaults to 0.99.
func (h *RiskHandler) Backtest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Confidence == 0 {
		req.Confidence = 0.99
	}
	res, err := h.risk.Backtest(r.Context(), req.Observations, req.Confidence)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RiskHandler) book(ctx context.Context, supplied []model.NetPosition) ([]model.NetPosition, error) {
	if len(supplied) > 0 || h.positions == nil {
		return supplied, nil
	}
	return h.positions.ComputeNetPositions(ctx, time.Time{})
}
