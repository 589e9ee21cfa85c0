package correlation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func crudeMatrix(t *testing.T) *Matrix {
	t.Helper()
	m := NewMatrix()
	for _, c := range []struct {
		a, b string
		rho  float64
	}{
		{"BRENT", "WTI", 0.92},
		{"BRENT", "GASOIL", 0.55},
		{"WTI", "GASOIL", 0.5},
	} {
		if err := m.Set(c.a, c.b, c.rho); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func TestMatrixSymmetricWithUnitDiagonal(t *testing.T) {
	m := crudeMatrix(t)

	if rho, ok := m.Get("WTI", "BRENT"); !ok || rho != 0.92 {
		t.Errorf("expected symmetric 0.92, got %v %v", rho, ok)
	}
	if rho, ok := m.Get("JET", "JET"); !ok || rho != 1 {
		t.Errorf("expected diagonal 1, got %v %v", rho, ok)
	}
	if _, ok := m.Get("BRENT", "JET"); ok {
		t.Error("unset pair should report missing")
	}
	if m.Len() != 3 {
		t.Errorf("expected 3 pairs, got %d", m.Len())
	}
}

func TestMatrixRejectsBadCoefficients(t *testing.T) {
	m := NewMatrix()
	if err := m.Set("BRENT", "WTI", 1.2); !errors.Is(err, ErrInvalidCoefficient) {
		t.Errorf("expected ErrInvalidCoefficient, got %v", err)
	}
	if err := m.Set("BRENT", "BRENT", 0.5); !errors.Is(err, ErrInvalidCoefficient) {
		t.Errorf("expected diagonal rejection, got %v", err)
	}
}

func TestFromNestedRoundTrip(t *testing.T) {
	m, err := FromNested(map[string]map[string]float64{
		"BRENT": {"WTI": 0.9, "BRENT": 1},
		"WTI":   {"JET": 0.6},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rho, _ := m.Get("JET", "WTI"); rho != 0.6 {
		t.Errorf("expected 0.6, got %v", rho)
	}
	n := m.Nested()
	if n["WTI"]["BRENT"] != 0.9 || n["JET"]["WTI"] != 0.6 {
		t.Errorf("unexpected nested form %v", n)
	}
}

func TestCheck_WithinLimits(t *testing.T) {
	l := NewExposureLimiter(d(1000000), d(5000000), 0.7)
	breaches := l.Check(map[string]decimal.Decimal{"BRENT": d(900000), "WTI": d(-800000)}, crudeMatrix(t))
	if len(breaches) != 0 {
		t.Errorf("expected no breaches, got %+v", breaches)
	}
}

func TestCheck_PerProductExceeded(t *testing.T) {
	l := NewExposureLimiter(d(1000000), decimal.Zero, 0.7)

	// Short exposure counts by absolute value.
	breaches := l.Check(map[string]decimal.Decimal{"BRENT": d(-1050000)}, nil)
	if len(breaches) != 1 {
		t.Fatalf("expected 1 breach, got %+v", breaches)
	}
	b := breaches[0]
	if b.Kind != BreachPerProduct || b.ProductCode != "BRENT" || !b.Exposure.Equal(d(1050000)) {
		t.Errorf("unexpected breach %+v", b)
	}
}

func TestCheck_CorrelatedExceeded(t *testing.T) {
	l := NewExposureLimiter(d(1000000), d(1500000), 0.7)

	// BRENT and WTI are correlated at 0.92: 800k + 800k = 1.6M > 1.5M.
	// GASOIL sits below the threshold against both.
	breaches := l.Check(map[string]decimal.Decimal{
		"BRENT":  d(800000),
		"WTI":    d(800000),
		"GASOIL": d(900000),
	}, crudeMatrix(t))

	if len(breaches) != 2 {
		t.Fatalf("expected BRENT and WTI correlated breaches, got %+v", breaches)
	}
	for i, want := range []string{"BRENT", "WTI"} {
		if breaches[i].ProductCode != want || breaches[i].Kind != BreachCorrelated {
			t.Errorf("breach %d: expected %s correlated, got %+v", i, want, breaches[i])
		}
		if !breaches[i].Exposure.Equal(d(1600000)) {
			t.Errorf("breach %d: expected 1.6M, got %s", i, breaches[i].Exposure)
		}
	}
}

func TestCheck_NegativeCorrelationNotGrouped(t *testing.T) {
	m := NewMatrix()
	_ = m.Set("BRENT", "MF05", -0.8)
	l := NewExposureLimiter(decimal.Zero, d(1000000), 0.7)

	breaches := l.Check(map[string]decimal.Decimal{"BRENT": d(700000), "MF05": d(700000)}, m)
	if len(breaches) != 0 {
		t.Errorf("negatively correlated products must not aggregate, got %+v", breaches)
	}
}

func TestNewExposureLimiter_DefaultThreshold(t *testing.T) {
	l := NewExposureLimiter(d(1), d(1), 0)
	if l.Threshold != 0.7 {
		t.Errorf("expected fallback threshold 0.7, got %v", l.Threshold)
	}
}
