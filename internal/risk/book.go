package risk

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

// Book is the per-product view of a set of net positions.
type Book struct {
	Products []string                   // sorted, non-zero exposure only
	Exposure map[string]decimal.Decimal // signed Σ positionValue per product
	Value    decimal.Decimal            // Σ |positionValue|
	Open     int                        // non-flat positions
}

// NewBook aggregates positions by product across delivery months. Long and
// short months of one product offset each other in the exposure, while the
// portfolio value counts every position's absolute value.
func NewBook(positions []model.NetPosition) Book {
	b := Book{Exposure: make(map[string]decimal.Decimal)}
	for _, p := range positions {
		b.Value = b.Value.Add(p.PositionValue.Abs())
		if p.PositionType != model.PositionFlat && !p.NetQuantity.IsZero() {
			b.Open++
		}
		b.Exposure[p.ProductCode] = b.Exposure[p.ProductCode].Add(p.PositionValue)
	}
	for code, e := range b.Exposure {
		if e.IsZero() {
			delete(b.Exposure, code)
			continue
		}
		b.Products = append(b.Products, code)
	}
	sort.Strings(b.Products)
	return b
}

func (b Book) weights() []float64 {
	w := make([]float64, len(b.Products))
	for i, p := range b.Products {
		w[i] = b.Exposure[p].InexactFloat64()
	}
	return w
}
