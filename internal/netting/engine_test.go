package netting

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var asOf = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func leg(id string, kind model.SettlementKind, product, month string, qty, price float64) model.ContractLeg {
	return model.ContractLeg{
		ContractID:    id,
		Kind:          kind,
		ProductCode:   product,
		DeliveryMonth: month,
		Quantity:      d(qty),
		Unit:          model.UnitBBL,
		Price:         d(price),
		Currency:      "USD",
		Status:        model.ContractActive,
		TradeDate:     asOf.AddDate(0, 0, -10),
	}
}

func TestComputeScenarioB(t *testing.T) {
	legs := []model.ContractLeg{
		leg("p1", model.KindPurchase, "BRENT", "2024-04", 30000, 80),
		leg("p2", model.KindPurchase, "BRENT", "2024-04", 20000, 80),
		leg("s1", model.KindSales, "BRENT", "2024-04", 30000, 82),
	}
	positions, err := Compute(legs, map[string]decimal.Decimal{"BRENT": d(85)}, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	p := positions[0]

	checks := map[string]struct{ got, want decimal.Decimal }{
		"net quantity":   {p.NetQuantity, d(20000)},
		"total matched":  {p.TotalMatched, d(30000)},
		"hedge ratio":    {p.HedgeRatio, d(0.6)},
		"net exposure":   {p.NetExposure, d(20000)},
		"average price":  {p.AveragePrice, d(80)},
		"position value": {p.PositionValue, d(1700000)},
		"realized":       {p.RealizedPnL, d(60000)},
		"unrealized":     {p.UnrealizedPnL, d(100000)},
		"total pnl":      {p.TotalPnL, d(160000)},
	}
	for name, c := range checks {
		if !c.got.Equal(c.want) {
			t.Errorf("%s: expected %s, got %s", name, c.want, c.got)
		}
	}
	if p.PositionType != model.PositionLong {
		t.Errorf("expected Long, got %s", p.PositionType)
	}
	if p.LongContracts != 2 || p.ShortContracts != 1 {
		t.Errorf("expected 2 long / 1 short contracts, got %d / %d", p.LongContracts, p.ShortContracts)
	}
}

func TestComputeOneSided(t *testing.T) {
	positions, err := Compute([]model.ContractLeg{
		leg("s1", model.KindSales, "WTI", "2024-05", 10000, 78),
	}, nil, asOf)
	if err != nil {
		t.Fatal(err)
	}
	p := positions[0]
	if p.PositionType != model.PositionShort || !p.HedgeRatio.IsZero() {
		t.Errorf("expected unhedged short, got %s ratio %s", p.PositionType, p.HedgeRatio)
	}
	if !p.NetExposure.Equal(d(-10000)) || !p.NetQuantity.Equal(d(-10000)) {
		t.Errorf("expected full short exposure, got %s / %s", p.NetExposure, p.NetQuantity)
	}
	if !p.CurrentPrice.IsZero() || !p.UnrealizedPnL.IsZero() {
		t.Errorf("unpriced position must carry no value, got %s / %s", p.CurrentPrice, p.UnrealizedPnL)
	}
}

func TestComputeFullyHedged(t *testing.T) {
	positions, err := Compute([]model.ContractLeg{
		leg("p1", model.KindPurchase, "JET", "2024-04", 15000, 95),
		leg("s1", model.KindSales, "JET", "2024-04", 15000, 96),
	}, map[string]decimal.Decimal{"JET": d(97)}, asOf)
	if err != nil {
		t.Fatal(err)
	}
	p := positions[0]
	if p.PositionType != model.PositionFlat || !p.HedgeRatio.Equal(decimal.NewFromInt(1)) || !p.NetExposure.IsZero() {
		t.Errorf("expected flat fully hedged, got %s ratio %s exposure %s", p.PositionType, p.HedgeRatio, p.NetExposure)
	}
	if !p.RealizedPnL.Equal(d(15000)) || !p.UnrealizedPnL.IsZero() {
		t.Errorf("expected realized 15000 and no unrealized, got %s / %s", p.RealizedPnL, p.UnrealizedPnL)
	}
}

func TestComputeNetAndHedgeBounds(t *testing.T) {
	legs := []model.ContractLeg{
		leg("a", model.KindPurchase, "BRENT", "2024-04", 0, 80),
		leg("b", model.KindSales, "BRENT", "2024-04", 0, 80),
		leg("c", model.KindPurchase, "WTI", "2024-04", 12345.5, 77),
		leg("e", model.KindSales, "WTI", "2024-04", 99999, 78),
		leg("f", model.KindPurchase, "WTI", "2024-05", 1, 77),
		leg("g", model.KindSales, "WTI", "2024-05", 0.5, 77),
	}
	positions, err := Compute(legs, nil, asOf)
	if err != nil {
		t.Fatal(err)
	}
	one := decimal.NewFromInt(1)
	for _, p := range positions {
		if !p.NetQuantity.Equal(p.LongQuantity.Sub(p.ShortQuantity)) {
			t.Errorf("%s %s: net %s != long - short", p.ProductCode, p.DeliveryMonth, p.NetQuantity)
		}
		if p.HedgeRatio.IsNegative() || p.HedgeRatio.GreaterThan(one) {
			t.Errorf("%s %s: hedge ratio %s out of bounds", p.ProductCode, p.DeliveryMonth, p.HedgeRatio)
		}
	}
	if positions[0].ProductCode != "BRENT" || !positions[0].HedgeRatio.IsZero() || positions[0].PositionType != model.PositionFlat {
		t.Errorf("empty book should be flat with ratio 0, got %+v", positions[0])
	}
}

func TestComputeConvertsToNativeUnit(t *testing.T) {
	hsfo := leg("p1", model.KindPurchase, "380CST", "2024-04", 6350, 450)
	hsfo.DensityFactor = d(6.35)
	mt := leg("s1", model.KindSales, "380CST", "2024-04", 400, 455)
	mt.Unit = model.UnitMT

	positions, err := Compute([]model.ContractLeg{hsfo, mt}, nil, asOf)
	if err != nil {
		t.Fatal(err)
	}
	p := positions[0]
	if p.Unit != model.UnitMT || !p.LongQuantity.Equal(d(1000)) || !p.NetQuantity.Equal(d(600)) {
		t.Errorf("expected 1000 MT long, 600 net, got %s %s / %s", p.Unit, p.LongQuantity, p.NetQuantity)
	}
}

func TestComputeSkipsCancelledAndSorts(t *testing.T) {
	cancelled := leg("x", model.KindPurchase, "BRENT", "2024-04", 5000, 80)
	cancelled.Status = model.ContractCancelled
	legs := []model.ContractLeg{
		leg("1", model.KindPurchase, "WTI", "2024-06", 100, 70),
		leg("2", model.KindPurchase, "BRENT", "2024-05", 100, 80),
		leg("3", model.KindPurchase, "BRENT", "2024-04", 100, 80),
		cancelled,
	}
	positions, err := Compute(legs, nil, asOf)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct{ product, month string }{{"BRENT", "2024-04"}, {"BRENT", "2024-05"}, {"WTI", "2024-06"}}
	if len(positions) != len(want) {
		t.Fatalf("expected %d positions, got %d", len(want), len(positions))
	}
	for i, w := range want {
		if positions[i].ProductCode != w.product || positions[i].DeliveryMonth != w.month {
			t.Errorf("position %d: expected %s %s, got %s %s", i, w.product, w.month, positions[i].ProductCode, positions[i].DeliveryMonth)
		}
	}
	if !positions[0].LongQuantity.Equal(d(100)) {
		t.Errorf("cancelled leg must be ignored, got %s", positions[0].LongQuantity)
	}
}

func TestComputeRejectsUnknownKind(t *testing.T) {
	bad := leg("x", "swap", "BRENT", "2024-04", 1, 1)
	if _, err := Compute([]model.ContractLeg{bad}, nil, asOf); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestComputeRejectsMixedCurrencies(t *testing.T) {
	eur := leg("p2", model.KindPurchase, "BRENT", "2024-04", 10000, 74)
	eur.Currency = "EUR"
	legs := []model.ContractLeg{leg("p1", model.KindPurchase, "BRENT", "2024-04", 10000, 80), eur}

	if _, err := Compute(legs, nil, asOf); !errors.Is(err, ErrMixedCurrency) {
		t.Errorf("expected ErrMixedCurrency, got %v", err)
	}

	// Other months and products keep their own currency.
	eur.DeliveryMonth = "2024-05"
	lower := leg("s1", model.KindSales, "BRENT", "2024-04", 5000, 82)
	lower.Currency = " usd"
	positions, err := Compute([]model.ContractLeg{legs[0], lower, eur}, nil, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 || positions[0].Currency != "USD" || positions[1].Currency != "EUR" {
		t.Errorf("unexpected currencies %+v", positions)
	}
}
