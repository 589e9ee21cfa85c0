// Package currency converts monetary amounts between currencies with an
// explicit exchange rate and minor-unit rounding.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingExchangeRate = errors.New("currency: missing exchange rate")
	ErrInvalidRate         = errors.New("currency: invalid exchange rate")
	ErrEmptyCurrency       = errors.New("currency: empty currency code")
)

// minorUnits lists currencies whose minor unit is not 2 decimals.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"BHD": 3,
}

// MinorUnits returns the number of decimals of code's minor unit.
func MinorUnits(code string) int32 {
	if n, ok := minorUnits[Normalize(code)]; ok {
		return n
	}
	return 2
}

// Normalize upper-cases and trims a currency code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Round rounds amount half-to-even at the minor unit of code.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.RoundBank(MinorUnits(code))
}

// Convert converts amount from one currency to another. rate is
// target-per-source. When from == to the rate must be zero (omitted) or 1.
// The result is rounded to the target's minor unit.
func Convert(amount decimal.Decimal, from, to string, rate decimal.Decimal) (decimal.Decimal, error) {
	from, to = Normalize(from), Normalize(to)
	if from == "" || to == "" {
		return decimal.Zero, ErrEmptyCurrency
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}
	if from == to {
		if !rate.IsZero() && !rate.Equal(decimal.NewFromInt(1)) {
			return decimal.Zero, fmt.Errorf("%w: %s->%s must be 1, got %s", ErrInvalidRate, from, to, rate)
		}
		return Round(amount, to), nil
	}
	if rate.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrMissingExchangeRate, from, to)
	}
	return Round(amount.Mul(rate), to), nil
}

// Rates maps a source currency to its rate into one target currency.
type Rates map[string]decimal.Decimal

// Convert converts amount from currency from into target using the table.
func (r Rates) Convert(amount decimal.Decimal, from, target string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	if r != nil {
		rate = r[Normalize(from)]
	}
	return Convert(amount, from, target, rate)
}

// With returns a copy of r with code's rate set.
func (r Rates) With(code string, rate decimal.Decimal) Rates {
	out := make(Rates, len(r)+1)
	for k, v := range r {
		out[Normalize(k)] = v
	}
	out[Normalize(code)] = rate
	return out
}
