package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// One-sided standard normal quantiles used for VaR.
const (
	Z95 = 1.645
	Z99 = 2.326
)

// chiSquare95 is the 95% critical value of χ² with one degree of freedom.
const chiSquare95 = 3.841

const (
	moneyScale = 2
	ratioScale = 6
)

// ZScore returns the one-sided normal quantile for a confidence level. The
// two standard levels use the conventional rounded values.
func ZScore(confidence float64) float64 {
	switch confidence {
	case 0.95:
		return Z95
	case 0.99:
		return Z99
	}
	return math.Sqrt2 * math.Erfinv(2*confidence-1)
}

// phi is the standard normal density.
func phi(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}

// shortfallFactor converts a portfolio standard deviation into expected
// shortfall at confidence c under a normal model: φ(z)/(1-c).
func shortfallFactor(c float64) float64 {
	return phi(ZScore(c)) / (1 - c)
}

func money(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f).Round(moneyScale)
}

func ratio(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f).Round(ratioScale)
}
