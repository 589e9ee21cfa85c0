// Package correlation holds pairwise product price correlations and enforces
// exposure limits that account for them.
//
// Products whose coefficient meets the limiter's threshold are treated as one
// correlated group: a long BRENT book and a long WTI book move together, so
// their absolute exposures are summed against the correlated maximum.
package correlation

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidCoefficient is returned for a coefficient outside [-1, 1].
var ErrInvalidCoefficient = errors.New("correlation: coefficient outside [-1, 1]")

type pair struct{ a, b string }

func key(a, b string) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a, b}
}

// Matrix is a symmetric correlation matrix keyed by product code. The
// diagonal is always 1 and never stored.
type Matrix struct {
	rho map[pair]float64
}

// NewMatrix creates an empty matrix.
func NewMatrix() *Matrix {
	return &Matrix{rho: make(map[pair]float64)}
}

// Set records the coefficient for a product pair in both directions.
func (m *Matrix) Set(a, b string, rho float64) error {
	if rho < -1 || rho > 1 {
		return fmt.Errorf("%w: %s/%s = %v", ErrInvalidCoefficient, a, b, rho)
	}
	if a == b {
		if rho != 1 {
			return fmt.Errorf("%w: diagonal %s must be 1, got %v", ErrInvalidCoefficient, a, rho)
		}
		return nil
	}
	m.rho[key(a, b)] = rho
	return nil
}

// Get returns the coefficient for a pair. ok is false when the pair was
// never set; a product always correlates 1 with itself.
func (m *Matrix) Get(a, b string) (rho float64, ok bool) {
	if a == b {
		return 1, true
	}
	if m == nil {
		return 0, false
	}
	rho, ok = m.rho[key(a, b)]
	return rho, ok
}

// Len returns the number of stored off-diagonal pairs.
func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rho)
}

// FromNested builds a matrix from a product → product → coefficient map, the
// shape callers send over the API. Asymmetric input keeps the last value
// visited in key order.
func FromNested(nested map[string]map[string]float64) (*Matrix, error) {
	m := NewMatrix()
	rows := make([]string, 0, len(nested))
	for a := range nested {
		rows = append(rows, a)
	}
	sort.Strings(rows)
	for _, a := range rows {
		cols := make([]string, 0, len(nested[a]))
		for b := range nested[a] {
			cols = append(cols, b)
		}
		sort.Strings(cols)
		for _, b := range cols {
			if err := m.Set(a, b, nested[a][b]); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Nested returns the matrix as a symmetric nested map without the diagonal.
func (m *Matrix) Nested() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	if m == nil {
		return out
	}
	for p, rho := range m.rho {
		if out[p.a] == nil {
			out[p.a] = make(map[string]float64)
		}
		if out[p.b] == nil {
			out[p.b] = make(map[string]float64)
		}
		out[p.a][p.b] = rho
		out[p.b][p.a] = rho
	}
	return out
}
