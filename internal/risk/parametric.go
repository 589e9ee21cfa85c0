package risk

import (
	"fmt"
	"math"

	"github.com/oiltrading/backoffice/internal/correlation"
	"github.com/oiltrading/backoffice/internal/model"
)

type parametricResult struct {
	sigma         float64 // portfolio standard deviation, settlement currency
	products      []model.ProductRisk
	undiversified float64 // Σ standalone VaR95
	warnings      []string
}

// parametric aggregates standalone product risk through the correlation
// matrix: σP² = Σᵢ Σⱼ wᵢ wⱼ ρᵢⱼ σᵢ σⱼ with wᵢ the signed exposure. Missing
// volatilities count as zero and missing coefficients as uncorrelated; both
// are reported.
func parametric(b Book, vols map[string]float64, m *correlation.Matrix) parametricResult {
	var res parametricResult
	w := b.weights()
	sig := make([]float64, len(b.Products))

	for i, p := range b.Products {
		v, ok := vols[p]
		if !ok || math.IsNaN(v) || v < 0 {
			res.warnings = append(res.warnings, fmt.Sprintf("no volatility for %s: standalone risk counted as 0", p))
			v = 0
		}
		sig[i] = v
		standalone := math.Abs(w[i]) * v
		res.undiversified += standalone * Z95
		res.products = append(res.products, model.ProductRisk{
			ProductCode: p,
			Exposure:    b.Exposure[p],
			Volatility:  ratio(v),
			VaR95:       money(standalone * Z95),
			VaR99:       money(standalone * Z99),
		})
	}

	var variance float64
	for i := range b.Products {
		for j := range b.Products {
			rho := 1.0
			if i != j {
				r, ok := m.Get(b.Products[i], b.Products[j])
				if !ok {
					if i < j {
						res.warnings = append(res.warnings, fmt.Sprintf("no correlation for %s/%s: assumed 0", b.Products[i], b.Products[j]))
					}
					r = 0
				}
				rho = r
			}
			variance += w[i] * w[j] * rho * sig[i] * sig[j]
		}
	}
	if variance < 0 {
		res.warnings = append(res.warnings, "correlation matrix is not positive semi-definite: portfolio variance floored at 0")
		variance = 0
	}
	res.sigma = math.Sqrt(variance)
	return res
}

// ewmaVolatility is the RiskMetrics exponentially weighted volatility of a
// return series, most recent observation weighted highest.
func ewmaVolatility(returns []float64, lambda float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var weighted, total float64
	weight := 1 - lambda
	for i := len(returns) - 1; i >= 0; i-- {
		weighted += weight * returns[i] * returns[i]
		total += weight
		weight *= lambda
	}
	return math.Sqrt(weighted / total)
}
