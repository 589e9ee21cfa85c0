package correlation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

// Breach kinds.
const (
	BreachPerProduct = "per_product"
	BreachCorrelated = "correlated"
)

// ExposureLimiter checks product exposures against limits with correlation
// awareness.
type ExposureLimiter struct {
	// MaxPerProduct is the maximum absolute exposure in any single product.
	// Zero disables the check.
	MaxPerProduct decimal.Decimal

	// MaxCorrelated is the maximum aggregate absolute exposure across a
	// product and every product correlated with it. Zero disables the check.
	MaxCorrelated decimal.Decimal

	// Threshold is the coefficient at or above which two products count as
	// correlated.
	Threshold float64
}

// NewExposureLimiter creates a limiter. A threshold outside (0, 1] falls
// back to 0.7.
func NewExposureLimiter(maxPerProduct, maxCorrelated decimal.Decimal, threshold float64) *ExposureLimiter {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &ExposureLimiter{
		MaxPerProduct: maxPerProduct,
		MaxCorrelated: maxCorrelated,
		Threshold:     threshold,
	}
}

// Check returns every breach in exposures, ordered by product code with the
// per-product breach before the correlated one. exposures maps product code
// to signed exposure in settlement currency.
func (l *ExposureLimiter) Check(exposures map[string]decimal.Decimal, m *Matrix) []model.LimitBreach {
	products := make([]string, 0, len(exposures))
	for p := range exposures {
		products = append(products, p)
	}
	sort.Strings(products)

	var breaches []model.LimitBreach
	for _, p := range products {
		abs := exposures[p].Abs()

		// 1. Per-product limit.
		if l.MaxPerProduct.IsPositive() && abs.GreaterThan(l.MaxPerProduct) {
			breaches = append(breaches, model.LimitBreach{
				ProductCode: p,
				Kind:        BreachPerProduct,
				Exposure:    abs,
				Limit:       l.MaxPerProduct,
			})
		}

		// 2. Correlated exposure: sum |exposure| across correlated products.
		if !l.MaxCorrelated.IsPositive() {
			continue
		}
		total := abs
		for _, q := range products {
			if q == p {
				continue // already counted
			}
			if rho, ok := m.Get(p, q); ok && rho >= l.Threshold {
				total = total.Add(exposures[q].Abs())
			}
		}
		if total.GreaterThan(l.MaxCorrelated) {
			breaches = append(breaches, model.LimitBreach{
				ProductCode: p,
				Kind:        BreachCorrelated,
				Exposure:    total,
				Limit:       l.MaxCorrelated,
			})
		}
	}
	return breaches
}
