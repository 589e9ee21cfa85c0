// Package pricing parses benchmark price formulas and averages quote series
// over a pricing window.
//
// Formula grammar:
//
//	AVG(<PRODUCT>) [(+|-) <premium>] [[<CCY>/]<UNIT>]
//	SPOT(<PRODUCT>) [(+|-) <premium>] [[<CCY>/]<UNIT>]
//
// Example: AVG(BRENT)+1.25 USD/BBL
package pricing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

// PriceScale is the number of decimals kept on an averaged benchmark price.
const PriceScale = 4

var (
	ErrInvalidFormula      = errors.New("pricing: invalid price formula")
	ErrNoPriceDataInWindow = errors.New("pricing: no price data in window")
	ErrInvalidWindow       = errors.New("pricing: pricing window start after end")
	ErrQuoteCurrency       = errors.New("pricing: quote currency mismatch")
)

// Method is how the quote series is reduced to one price.
type Method string

const (
	MethodAverage Method = "AVG"
	MethodSpot    Method = "SPOT"
)

var formulaRegex = regexp.MustCompile(
	`^(AVG|SPOT)\(([A-Z0-9]+)\)(?:\s*([+-])\s*(\d+(?:\.\d+)?))?(?:\s+(?:([A-Z]{3})/)?(MT|BBL))?$`,
)

// Formula is a parsed benchmark price formula.
type Formula struct {
	Raw         string          `json:"raw"`
	Method      Method          `json:"method"`
	ProductCode string          `json:"product_code"`
	Premium     decimal.Decimal `json:"premium"`            // signed
	Currency    string          `json:"currency,omitempty"` // empty when not stated
	Unit        model.Unit      `json:"unit"`               // empty when not stated
}

// ParseFormula parses and validates a formula string.
func ParseFormula(s string) (*Formula, error) {
	raw := strings.TrimSpace(s)
	matches := formulaRegex.FindStringSubmatch(strings.ToUpper(raw))
	if matches == nil {
		return nil, fmt.Errorf("%w: %q (expected AVG(PRODUCT)[+/-premium] [USD/UNIT])", ErrInvalidFormula, s)
	}

	f := &Formula{
		Raw:         raw,
		Method:      Method(matches[1]),
		ProductCode: matches[2],
		Premium:     decimal.Zero,
		Currency:    matches[5],
		Unit:        model.Unit(matches[6]),
	}
	if matches[4] != "" {
		p, err := decimal.NewFromString(matches[4])
		if err != nil {
			return nil, fmt.Errorf("%w: premium %s", ErrInvalidFormula, matches[4])
		}
		if matches[3] == "-" {
			p = p.Neg()
		}
		f.Premium = p
	}
	return f, nil
}

// QuoteSource supplies daily benchmark quotes for a product over an
// inclusive date range.
type QuoteSource interface {
	Quotes(ctx context.Context, productCode string, from, to time.Time) ([]model.PriceQuote, error)
}

// Resolution is an evaluated formula. Currency is the formula's stated
// currency, else the one the quotes carry; empty when neither says.
type Resolution struct {
	Price      decimal.Decimal
	Currency   string
	QuotesUsed int
}

// Evaluate resolves f against src over [start, end] inclusive. AVG takes the
// arithmetic mean of the daily quotes found (missing days are skipped, not
// interpolated); SPOT takes the last quote in the window. The premium is
// added after reduction and the result rounded to PriceScale.
func (f *Formula) Evaluate(ctx context.Context, src QuoteSource, start, end time.Time) (Resolution, error) {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return Resolution{}, fmt.Errorf("%w: %s > %s", ErrInvalidWindow, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	quotes, err := src.Quotes(ctx, f.ProductCode, start, end)
	if err != nil {
		return Resolution{}, fmt.Errorf("load %s quotes: %w", f.ProductCode, err)
	}
	quotes = inWindow(quotes, start, end)
	if len(quotes) == 0 {
		return Resolution{}, fmt.Errorf("%w: %s %s..%s", ErrNoPriceDataInWindow,
			f.ProductCode, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	ccy, err := f.quoteCurrency(quotes)
	if err != nil {
		return Resolution{}, err
	}

	var base decimal.Decimal
	switch f.Method {
	case MethodAverage:
		base = Average(quotes)
	case MethodSpot:
		last := quotes[0]
		for _, q := range quotes[1:] {
			if q.PriceDate.After(last.PriceDate) {
				last = q
			}
		}
		base = last.Price
	default:
		return Resolution{}, fmt.Errorf("%w: method %q", ErrInvalidFormula, f.Method)
	}

	return Resolution{
		Price:      base.Add(f.Premium).RoundBank(PriceScale),
		Currency:   ccy,
		QuotesUsed: len(quotes),
	}, nil
}

// quoteCurrency checks that every quote in the window shares one currency
// and that it agrees with the formula's. Quotes without a currency are
// taken to be in the formula's.
func (f *Formula) quoteCurrency(quotes []model.PriceQuote) (string, error) {
	ccy := f.Currency
	for _, q := range quotes {
		qc := strings.ToUpper(strings.TrimSpace(q.Currency))
		switch {
		case qc == "":
		case ccy == "":
			ccy = qc
		case qc != ccy:
			if f.Currency != "" {
				return "", fmt.Errorf("%w: %s quoted in %s, formula states %s", ErrQuoteCurrency, f.ProductCode, qc, f.Currency)
			}
			return "", fmt.Errorf("%w: %s quotes mix %s and %s", ErrQuoteCurrency, f.ProductCode, ccy, qc)
		}
	}
	return ccy, nil
}

// Average returns the unrounded arithmetic mean of one quote per day. When
// several quotes share a date, the last one seen wins.
func Average(quotes []model.PriceQuote) decimal.Decimal {
	byDay := make(map[time.Time]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		byDay[Day(q.PriceDate)] = q.Price
	}
	if len(byDay) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range byDay {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(len(byDay))))
}

func inWindow(quotes []model.PriceQuote, start, end time.Time) []model.PriceQuote {
	out := quotes[:0:0]
	for _, q := range quotes {
		day := Day(q.PriceDate)
		if day.Before(start) || day.After(end) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, dd := t.UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}
