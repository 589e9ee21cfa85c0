package charge

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/currency"
	"github.com/oiltrading/backoffice/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func fixed(amount float64, ccy string) model.SettlementCharge {
	return model.SettlementCharge{
		ChargeType: model.ChargeInspection,
		Amount:     decimal.NewNullDecimal(d(amount)),
		Currency:   ccy,
		IsFixed:    true,
	}
}

func pct(p float64) model.SettlementCharge {
	return model.SettlementCharge{
		ChargeType: model.ChargeInsurance,
		Amount:     decimal.NewNullDecimal(d(p)),
	}
}

func TestAggregateFixedAndPercentage(t *testing.T) {
	charges := []model.SettlementCharge{fixed(500, "USD"), pct(1)}

	res, err := Aggregate(charges, d(4275000), "USD", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Total.Equal(d(43250)) {
		t.Errorf("expected 43250, got %s", res.Total)
	}
	if !res.Resolved[1].Equal(d(42750)) {
		t.Errorf("expected percentage line 42750, got %s", res.Resolved[1])
	}
}

func TestAggregateEmpty(t *testing.T) {
	res, err := Aggregate(nil, d(1000), "USD", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Total.IsZero() {
		t.Errorf("expected 0, got %s", res.Total)
	}
}

func TestAggregatePermutationInvariant(t *testing.T) {
	rates := currency.Rates{"EUR": d(1.0875)}
	base := []model.SettlementCharge{
		fixed(500, "USD"),
		pct(0.125),
		fixed(1234.57, "EUR"),
		pct(0.05),
		fixed(99.99, ""),
	}
	cargo := d(3141592.65)

	want, err := Aggregate(base, cargo, "USD", rates)
	if err != nil {
		t.Fatal(err)
	}

	perms := [][]int{
		{4, 3, 2, 1, 0},
		{2, 0, 4, 1, 3},
		{1, 2, 3, 4, 0},
	}
	for _, p := range perms {
		shuffled := make([]model.SettlementCharge, len(base))
		for i, j := range p {
			shuffled[i] = base[j]
		}
		got, err := Aggregate(shuffled, cargo, "USD", rates)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Total.Equal(want.Total) {
			t.Errorf("permutation %v: want %s, got %s", p, want.Total, got.Total)
		}
	}
}

func TestAggregateCrossCurrency(t *testing.T) {
	res, err := Aggregate([]model.SettlementCharge{fixed(1000, "EUR")}, d(1), "USD", currency.Rates{"EUR": d(1.08)})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Total.Equal(d(1080)) {
		t.Errorf("expected 1080, got %s", res.Total)
	}

	_, err = Aggregate([]model.SettlementCharge{fixed(1000, "EUR")}, d(1), "USD", nil)
	if !errors.Is(err, currency.ErrMissingExchangeRate) {
		t.Errorf("expected ErrMissingExchangeRate, got %v", err)
	}
}

func TestInvalidPercentage(t *testing.T) {
	for _, p := range []float64{-0.5, 100.01, 250} {
		_, err := Aggregate([]model.SettlementCharge{pct(p)}, d(1000), "USD", nil)
		if !errors.Is(err, ErrInvalidChargePercentage) {
			t.Errorf("pct %v: expected ErrInvalidChargePercentage, got %v", p, err)
		}
	}
	// Bounds are inclusive.
	for _, p := range []float64{0, 100} {
		if _, err := Aggregate([]model.SettlementCharge{pct(p)}, d(1000), "USD", nil); err != nil {
			t.Errorf("pct %v: unexpected error %v", p, err)
		}
	}
}

func TestNegativeFixedAmount(t *testing.T) {
	_, err := Aggregate([]model.SettlementCharge{fixed(-1, "USD")}, d(1000), "USD", nil)
	if !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestUnresolvedAmount(t *testing.T) {
	pending := model.SettlementCharge{ChargeType: model.ChargeDemurrage, IsFixed: true}
	charges := []model.SettlementCharge{fixed(250, "USD"), pending}

	if _, err := Aggregate(charges, d(1000), "USD", nil); !errors.Is(err, ErrUnresolvedAmount) {
		t.Errorf("expected ErrUnresolvedAmount, got %v", err)
	}

	res, err := AggregateResolved(charges, d(1000), "USD", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Total.Equal(d(250)) || res.Unresolved != 1 {
		t.Errorf("expected 250 with 1 unresolved, got %s / %d", res.Total, res.Unresolved)
	}
}

func TestUnknownChargeType(t *testing.T) {
	c := fixed(10, "USD")
	c.ChargeType = "bunker_surcharge"
	if err := Validate(c); !errors.Is(err, ErrInvalidChargeType) {
		t.Errorf("expected ErrInvalidChargeType, got %v", err)
	}
}

func TestFromTemplate(t *testing.T) {
	a := fixed(100, "USD")
	a.ID = "tpl-1"
	a.IncludeByDefault = true
	b := pct(0.1)
	b.ID = "tpl-2"

	got := FromTemplate([]model.SettlementCharge{a, b}, false)
	if len(got) != 1 || got[0].ID != "" {
		t.Fatalf("expected one default item with cleared ID, got %+v", got)
	}
	if got := FromTemplate([]model.SettlementCharge{a, b}, true); len(got) != 2 {
		t.Errorf("expected both items, got %d", len(got))
	}
}
