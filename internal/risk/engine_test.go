package risk

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/correlation"
	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var now = time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

func pos(product string, value float64) model.NetPosition {
	p := model.NetPosition{
		ProductCode:   product,
		DeliveryMonth: "2024-04",
		PositionValue: d(value),
		NetQuantity:   d(math.Copysign(1000, value)),
		PositionType:  model.PositionLong,
	}
	if value < 0 {
		p.PositionType = model.PositionShort
	}
	return p
}

func matrix(t *testing.T, rho float64) *correlation.Matrix {
	t.Helper()
	m := correlation.NewMatrix()
	if err := m.Set("BRENT", "GASOIL", rho); err != nil {
		t.Fatal(err)
	}
	return m
}

func near(a, b decimal.Decimal, tol float64) bool {
	return math.Abs(a.InexactFloat64()-b.InexactFloat64()) <= tol
}

func hasWarning(m *model.RiskMetrics, substr string) bool {
	for _, w := range m.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestParametricSingleProduct(t *testing.T) {
	m, err := NewEngine(DefaultConfig()).Compute(Input{
		Positions:  []model.NetPosition{pos("BRENT", 1000000)},
		Volatility: map[string]float64{"BRENT": 0.02},
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if !m.VaR95.Equal(d(32900)) || !m.VaR99.Equal(d(46520)) {
		t.Errorf("expected VaR 32,900 / 46,520, got %s / %s", m.VaR95, m.VaR99)
	}
	// ES95 = σ·φ(1.645)/0.05 ≈ 20,000 × 2.0622.
	if !near(m.ExpectedShortfall95, d(41245), 25) {
		t.Errorf("expected ES95 near 41,245, got %s", m.ExpectedShortfall95)
	}
	if !m.ExpectedShortfall99.GreaterThan(m.VaR99) {
		t.Errorf("ES99 %s should exceed VaR99 %s", m.ExpectedShortfall99, m.VaR99)
	}
	if !m.DiversificationBenefit.IsZero() {
		t.Errorf("single product has no diversification, got %s", m.DiversificationBenefit)
	}
	if len(m.ProductRisks) != 1 || !m.ProductRisks[0].VaR95.Equal(d(32900)) {
		t.Errorf("unexpected product risks %+v", m.ProductRisks)
	}
	if m.NumberOfPositions != 1 || !m.PortfolioValue.Equal(d(1000000)) {
		t.Errorf("unexpected counts %d / %s", m.NumberOfPositions, m.PortfolioValue)
	}
	if !m.Timestamp.Equal(now) || m.Method != model.MethodParametric {
		t.Errorf("unexpected stamp %s %s", m.Timestamp, m.Method)
	}
}

func TestParametricCorrelation(t *testing.T) {
	positions := []model.NetPosition{pos("BRENT", 1000000), pos("GASOIL", 1000000)}
	vols := map[string]float64{"BRENT": 0.02, "GASOIL": 0.02}
	engine := NewEngine(DefaultConfig())

	tests := []struct {
		name    string
		rho     float64
		var95   float64
		benefit float64
	}{
		{"perfectly correlated", 1, 65800, 0},
		{"uncorrelated", 0, 65800 / math.Sqrt2, 1 - 1/math.Sqrt2},
		{"perfect hedge", -1, 0, 1},
	}
	for _, tt := range tests {
		m, err := engine.Compute(Input{Positions: positions, Volatility: vols, Matrix: matrix(t, tt.rho)}, now)
		if err != nil {
			t.Fatal(err)
		}
		if !near(m.VaR95, d(tt.var95), 0.01) {
			t.Errorf("%s: expected VaR95 %.2f, got %s", tt.name, tt.var95, m.VaR95)
		}
		if !near(m.DiversificationBenefit, d(tt.benefit), 1e-6) {
			t.Errorf("%s: expected benefit %.6f, got %s", tt.name, tt.benefit, m.DiversificationBenefit)
		}
		if !m.UndiversifiedVaR95.Equal(d(65800)) {
			t.Errorf("%s: expected undiversified 65,800, got %s", tt.name, m.UndiversifiedVaR95)
		}
	}
}

func TestDiversificationNeverNegative(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	vols := map[string]float64{"BRENT": 0.021, "GASOIL": 0.017}
	for _, exposures := range [][2]float64{{1000000, 250000}, {-400000, 900000}, {123456, -654321}} {
		positions := []model.NetPosition{pos("BRENT", exposures[0]), pos("GASOIL", exposures[1])}
		for rho := -1.0; rho <= 1.0; rho += 0.25 {
			m, err := engine.Compute(Input{Positions: positions, Volatility: vols, Matrix: matrix(t, rho)}, now)
			if err != nil {
				t.Fatal(err)
			}
			if m.DiversificationBenefit.IsNegative() {
				t.Errorf("exposures %v rho %.2f: negative benefit %s", exposures, rho, m.DiversificationBenefit)
			}
			if m.VaR95.GreaterThan(m.UndiversifiedVaR95.Add(d(0.01))) {
				t.Errorf("exposures %v rho %.2f: VaR %s above standalone sum %s", exposures, rho, m.VaR95, m.UndiversifiedVaR95)
			}
		}
	}
}

func TestMissingInputsBecomeWarnings(t *testing.T) {
	m, err := NewEngine(DefaultConfig()).Compute(Input{
		Positions:  []model.NetPosition{pos("BRENT", 1000000), pos("GASOIL", 500000), pos("JET", 300000)},
		Volatility: map[string]float64{"BRENT": 0.02, "GASOIL": 0.02},
		Warnings:   []string{"upstream note"},
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if !hasWarning(m, "no volatility for JET") {
		t.Errorf("expected JET volatility warning, got %v", m.Warnings)
	}
	if !hasWarning(m, "no correlation for BRENT/GASOIL") {
		t.Errorf("expected correlation warning, got %v", m.Warnings)
	}
	if !hasWarning(m, "upstream note") {
		t.Errorf("input warnings must carry through, got %v", m.Warnings)
	}
	// Uncorrelated: sqrt(20,000² + 10,000²) × 1.645.
	if !near(m.VaR95, d(math.Sqrt(5e8)*Z95), 0.01) {
		t.Errorf("expected missing ρ to act as 0, got %s", m.VaR95)
	}
}

// dailyReturns builds a series of one return per day ending at now.
func dailyReturns(values []float64) []marketdata.Return {
	out := make([]marketdata.Return, len(values))
	start := now.AddDate(0, 0, -len(values))
	for i, v := range values {
		out[i] = marketdata.Return{Date: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

func TestHistorical(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 0.001
		if i >= 94 {
			values[i] = -0.05
		}
	}
	cfg := DefaultConfig()
	cfg.Method = model.MethodHistorical
	m, err := NewEngine(cfg).Compute(Input{
		Positions:  []model.NetPosition{pos("BRENT", 1000000)},
		Volatility: map[string]float64{"BRENT": 0.01},
		Returns:    map[string][]marketdata.Return{"BRENT": dailyReturns(values)},
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if m.Method != model.MethodHistorical {
		t.Fatalf("expected historical, got %s (%v)", m.Method, m.Warnings)
	}
	if !m.VaR95.Equal(d(50000)) || !m.VaR99.Equal(d(50000)) || !m.ExpectedShortfall95.Equal(d(50000)) {
		t.Errorf("expected 50,000 tail figures, got %s / %s / %s", m.VaR95, m.VaR99, m.ExpectedShortfall95)
	}
	if !m.MaxDrawdown.Equal(d(300000)) {
		t.Errorf("expected drawdown 300,000, got %s", m.MaxDrawdown)
	}
}

func TestHistoricalFallsBackWithShortHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = model.MethodHistorical
	m, err := NewEngine(cfg).Compute(Input{
		Positions:  []model.NetPosition{pos("BRENT", 1000000)},
		Volatility: map[string]float64{"BRENT": 0.02},
		Returns:    map[string][]marketdata.Return{"BRENT": dailyReturns([]float64{0.01, -0.01, 0.02})},
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if m.Method != model.MethodParametric || !m.VaR95.Equal(d(32900)) {
		t.Errorf("expected parametric fallback, got %s %s", m.Method, m.VaR95)
	}
	if !hasWarning(m, "parametric used") {
		t.Errorf("expected fallback warning, got %v", m.Warnings)
	}
}

func TestEWMA(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 0.02
		if i%2 == 1 {
			values[i] = -0.02
		}
	}
	if v := ewmaVolatility(values, 0.94); math.Abs(v-0.02) > 1e-12 {
		t.Errorf("expected constant magnitude to give 0.02, got %v", v)
	}

	cfg := DefaultConfig()
	cfg.Method = model.MethodEWMA
	m, err := NewEngine(cfg).Compute(Input{
		Positions:  []model.NetPosition{pos("BRENT", 1000000)},
		Volatility: map[string]float64{"BRENT": 0.5}, // ignored when history exists
		Returns:    map[string][]marketdata.Return{"BRENT": dailyReturns(values)},
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if !near(m.VaR95, d(32900), 0.01) {
		t.Errorf("expected EWMA VaR95 32,900, got %s", m.VaR95)
	}
}

func TestMonteCarloReproducible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	brent := make([]float64, 250)
	gasoil := make([]float64, 250)
	for i := range brent {
		common := rng.NormFloat64()
		brent[i] = 0.02 * common
		gasoil[i] = 0.015 * (0.8*common + 0.6*rng.NormFloat64())
	}
	in := Input{
		Positions: []model.NetPosition{pos("BRENT", 1000000), pos("GASOIL", -400000)},
		Volatility: map[string]float64{
			"BRENT":  marketdata.StdDev(brent),
			"GASOIL": marketdata.StdDev(gasoil),
		},
		Returns: map[string][]marketdata.Return{
			"BRENT":  dailyReturns(brent),
			"GASOIL": dailyReturns(gasoil),
		},
		Matrix: matrix(t, marketdata.Pearson(brent, gasoil)),
	}

	cfg := DefaultConfig()
	cfg.Method = model.MethodMonteCarlo
	first, err := NewEngine(cfg).Compute(in, now)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := NewEngine(cfg).Compute(in, now)
	if !first.VaR95.Equal(second.VaR95) || !first.ExpectedShortfall99.Equal(second.ExpectedShortfall99) {
		t.Errorf("same seed must reproduce: %s vs %s", first.VaR95, second.VaR95)
	}
	if first.Method != model.MethodMonteCarlo {
		t.Fatalf("expected monte carlo, got %s (%v)", first.Method, first.Warnings)
	}

	cfg.Method = model.MethodParametric
	par, _ := NewEngine(cfg).Compute(in, now)
	ratio := first.VaR95.InexactFloat64() / par.VaR95.InexactFloat64()
	if ratio < 0.85 || ratio > 1.15 {
		t.Errorf("Monte Carlo VaR95 %s too far from parametric %s", first.VaR95, par.VaR95)
	}
	if first.ExpectedShortfall95.LessThan(first.VaR95) {
		t.Errorf("ES95 %s below VaR95 %s", first.ExpectedShortfall95, first.VaR95)
	}
}

func TestCholesky(t *testing.T) {
	l, err := cholesky([][]float64{{4, 2}, {2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{2, 0}, {1, math.Sqrt2}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(l[i][j]-want[i][j]) > 1e-12 {
				t.Errorf("L[%d][%d]: expected %v, got %v", i, j, want[i][j], l[i][j])
			}
		}
	}
	if _, err := cholesky([][]float64{{1, 2}, {2, 1}}); err == nil {
		t.Error("expected failure for an indefinite matrix")
	}
}

func TestLimitBreachesInSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limiter = correlation.NewExposureLimiter(d(750000), decimal.Zero, 0.7)
	m, err := NewEngine(cfg).Compute(Input{
		Positions:  []model.NetPosition{pos("BRENT", 1000000), pos("GASOIL", 500000)},
		Volatility: map[string]float64{"BRENT": 0.02, "GASOIL": 0.02},
		Matrix:     matrix(t, 0.5),
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.LimitBreaches) != 1 || m.LimitBreaches[0].ProductCode != "BRENT" {
		t.Errorf("expected one BRENT breach, got %+v", m.LimitBreaches)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, err := NewEngine(Config{Method: "garch"}).Compute(Input{}, now)
	if err == nil {
		t.Error("expected ErrUnknownMethod")
	}
}

func TestBookOffsetsMonths(t *testing.T) {
	apr := pos("BRENT", 500000)
	may := pos("BRENT", -200000)
	may.DeliveryMonth = "2024-05"
	b := NewBook([]model.NetPosition{apr, may})
	if !b.Exposure["BRENT"].Equal(d(300000)) || !b.Value.Equal(d(700000)) || b.Open != 2 {
		t.Errorf("unexpected book %+v", b)
	}
}

func TestVaRWithinStandaloneSumEveryMethod(t *testing.T) {
	fat := make([]float64, 20)
	for i := range fat {
		fat[i] = 0.001
		if i%2 == 1 {
			fat[i] = -0.001
		}
	}
	fat[5], fat[12] = -0.10, -0.10

	rng := rand.New(rand.NewSource(11))
	brent := make([]float64, 250)
	gasoil := make([]float64, 250)
	for i := range brent {
		common := rng.NormFloat64()
		brent[i] = 0.02 * common
		gasoil[i] = 0.015 * (0.8*common + 0.6*rng.NormFloat64())
	}

	books := []struct {
		name string
		in   Input
	}{
		{"fat tailed single product", Input{
			Positions:  []model.NetPosition{pos("BRENT", 100000)},
			Volatility: map[string]float64{"BRENT": marketdata.StdDev(fat)},
			Returns:    map[string][]marketdata.Return{"BRENT": dailyReturns(fat)},
		}},
		{"hedged products", Input{
			Positions: []model.NetPosition{pos("BRENT", 1000000), pos("GASOIL", -600000)},
			Volatility: map[string]float64{
				"BRENT":  marketdata.StdDev(brent),
				"GASOIL": marketdata.StdDev(gasoil),
			},
			Returns: map[string][]marketdata.Return{
				"BRENT":  dailyReturns(brent),
				"GASOIL": dailyReturns(gasoil),
			},
			Matrix: matrix(t, marketdata.Pearson(brent, gasoil)),
		}},
	}
	methods := []model.VaRMethod{model.MethodParametric, model.MethodEWMA, model.MethodHistorical, model.MethodMonteCarlo}

	for _, b := range books {
		for _, method := range methods {
			cfg := DefaultConfig()
			cfg.Method = method
			m, err := NewEngine(cfg).Compute(b.in, now)
			if err != nil {
				t.Fatalf("%s %s: %v", b.name, method, err)
			}
			if m.Method != method {
				t.Fatalf("%s: expected %s, got %s (%v)", b.name, method, m.Method, m.Warnings)
			}
			if m.VaR95.GreaterThan(m.UndiversifiedVaR95) {
				t.Errorf("%s %s: VaR95 %s above standalone sum %s", b.name, method, m.VaR95, m.UndiversifiedVaR95)
			}
			sum := decimal.Zero
			for _, pr := range m.ProductRisks {
				sum = sum.Add(pr.VaR95)
			}
			if !near(sum, m.UndiversifiedVaR95, 0.02) {
				t.Errorf("%s %s: product VaR95 sum %s, undiversified %s", b.name, method, sum, m.UndiversifiedVaR95)
			}
			if m.DiversificationBenefit.IsNegative() {
				t.Errorf("%s %s: negative benefit %s", b.name, method, m.DiversificationBenefit)
			}
		}
	}
}

func TestHistoricalProductRiskFromOwnTail(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 0.001
		if i%2 == 1 {
			values[i] = -0.001
		}
	}
	values[3], values[17] = -0.10, -0.10

	cfg := DefaultConfig()
	cfg.Method = model.MethodHistorical
	m, err := NewEngine(cfg).Compute(Input{
		Positions:  []model.NetPosition{pos("BRENT", 100000)},
		Volatility: map[string]float64{"BRENT": marketdata.StdDev(values)},
		Returns:    map[string][]marketdata.Return{"BRENT": dailyReturns(values)},
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if !m.VaR95.Equal(d(10000)) {
		t.Fatalf("expected VaR95 10,000, got %s (%v)", m.VaR95, m.Warnings)
	}
	if !m.ProductRisks[0].VaR95.Equal(d(10000)) || !m.UndiversifiedVaR95.Equal(d(10000)) {
		t.Errorf("expected standalone 10,000, got product %s undiversified %s", m.ProductRisks[0].VaR95, m.UndiversifiedVaR95)
	}
	if !m.DiversificationBenefit.IsZero() {
		t.Errorf("a single product has no diversification, got %s", m.DiversificationBenefit)
	}
}
