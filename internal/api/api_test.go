package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/api"
	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/netting"
	"github.com/oiltrading/backoffice/internal/risk"
	"github.com/oiltrading/backoffice/internal/settlement"
	"github.com/oiltrading/backoffice/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv wires every handler over one in-memory store.
func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	feed := marketdata.NewFeed(ms, marketdata.DefaultLookback)

	settlements := settlement.NewService(ms, settlement.NewCalculator(feed), nil)
	positions := netting.NewService(ms, feed)
	riskSvc := risk.NewService(risk.NewEngine(risk.DefaultConfig()), feed, ms)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		api.NewSettlementHandler(settlements, "USD").Routes(r)
		api.NewPositionHandler(positions).Routes(r)
		api.NewRiskHandler(riskSvc, positions).Routes(r)
		api.NewPriceHandler(marketdata.NewImporter(ms)).Routes(r)
	})
	return ms, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return v
}

func errorText(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, w)["error"]
}

// purchaseRequest is 50,000 BBL at 85.50 with a 500 USD fixed charge and a
// 1% insurance charge.
func purchaseRequest() settlement.Request {
	return settlement.Request{
		Kind:                model.KindPurchase,
		ContractID:          "c-1",
		ContractNumber:      "PC-2024-0001",
		CalculationQuantity: model.Quantity{BBL: d(50000)},
		BenchmarkPrice:      d(85.50),
		BenchmarkUnit:       model.UnitBBL,
		PriceCurrency:       "USD",
		Charges: []model.SettlementCharge{
			{ChargeType: model.ChargeInspection, Amount: decimal.NewNullDecimal(d(500)), Currency: "USD", IsFixed: true},
			{ChargeType: model.ChargeInsurance, Amount: decimal.NewNullDecimal(d(1))},
		},
		RequestedBy: "trader-1",
	}
}

func nullAmount(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(f))
}

func httptestRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(router chi.Router, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
