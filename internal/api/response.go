// Package api exposes the settlement, position and risk services over HTTP
// and pushes change events to WebSocket clients.
//
// All monetary values travel as decimal strings.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oiltrading/backoffice/internal/charge"
	"github.com/oiltrading/backoffice/internal/contract"
	"github.com/oiltrading/backoffice/internal/correlation"
	"github.com/oiltrading/backoffice/internal/currency"
	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/netting"
	"github.com/oiltrading/backoffice/internal/pricing"
	"github.com/oiltrading/backoffice/internal/quantity"
	"github.com/oiltrading/backoffice/internal/risk"
	"github.com/oiltrading/backoffice/internal/settlement"
	"github.com/oiltrading/backoffice/internal/store"
)

// statusCodes maps domain errors to HTTP statuses, checked in order.
var statusCodes = []struct {
	err    error
	status int
}{
	{store.ErrNotFound, http.StatusNotFound},
	{settlement.ErrChargeNotFound, http.StatusNotFound},

	{store.ErrConcurrencyConflict, http.StatusConflict},
	{store.ErrAlreadyExists, http.StatusConflict},
	{store.ErrLockHeld, http.StatusConflict},
	{settlement.ErrSettlementFinalized, http.StatusConflict},
	{settlement.ErrSettlementCancelled, http.StatusConflict},
	{settlement.ErrCannotCancelFinalized, http.StatusConflict},
	{settlement.ErrInvalidStatusTransition, http.StatusConflict},

	{settlement.ErrUnresolvedCharges, http.StatusUnprocessableEntity},
	{settlement.ErrNoChargesResolved, http.StatusUnprocessableEntity},
	{charge.ErrUnresolvedAmount, http.StatusUnprocessableEntity},
	{pricing.ErrNoPriceDataInWindow, http.StatusUnprocessableEntity},
	{pricing.ErrQuoteCurrency, http.StatusUnprocessableEntity},
	{currency.ErrMissingExchangeRate, http.StatusUnprocessableEntity},
	{netting.ErrMixedCurrency, http.StatusUnprocessableEntity},

	{settlement.ErrValidation, http.StatusBadRequest},
	{charge.ErrInvalidChargePercentage, http.StatusBadRequest},
	{charge.ErrNegativeAmount, http.StatusBadRequest},
	{charge.ErrInvalidChargeType, http.StatusBadRequest},
	{currency.ErrInvalidRate, http.StatusBadRequest},
	{currency.ErrEmptyCurrency, http.StatusBadRequest},
	{quantity.ErrInvalidArgument, http.StatusBadRequest},
	{contract.ErrInvalidContractNumber, http.StatusBadRequest},
	{contract.ErrKindMismatch, http.StatusBadRequest},
	{contract.ErrUnknownProduct, http.StatusBadRequest},
	{contract.ErrInvalidDeliveryMonth, http.StatusBadRequest},
	{model.ErrUnknownKind, http.StatusBadRequest},
	{pricing.ErrInvalidFormula, http.StatusBadRequest},
	{pricing.ErrInvalidWindow, http.StatusBadRequest},
	{correlation.ErrInvalidCoefficient, http.StatusBadRequest},
	{risk.ErrInvalidScenario, http.StatusBadRequest},
	{risk.ErrNoObservations, http.StatusBadRequest},
	{risk.ErrInvalidConfidence, http.StatusBadRequest},
	{risk.ErrUnknownMethod, http.StatusBadRequest},
	{marketdata.ErrInvalidWorkbook, http.StatusBadRequest},
}

// StatusFor returns the HTTP status for err; unknown errors are 500.
func StatusFor(err error) int {
	for _, c := range statusCodes {
		if errors.Is(err, c.err) {
			return c.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Internal errors are logged and
// their text is not returned.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// asOfParam reads ?as_of= as a date or RFC 3339 timestamp. A date means the
// end of that day; absent means now.
func asOfParam(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.Add(24*time.Hour - time.Nanosecond), nil
	}
	return time.Parse(time.RFC3339, v)
}

func versionParam(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("version")
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
