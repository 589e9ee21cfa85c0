// Package marketdata serves benchmark quotes and derived market statistics
// (current price, daily returns, volatility, correlation) from the store,
// and imports quote workbooks.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/oiltrading/backoffice/internal/correlation"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/store"
)

var (
	ErrNoQuote             = errors.New("marketdata: no quote")
	ErrInsufficientHistory = errors.New("marketdata: insufficient price history")
)

// DefaultLookback is the calendar window used for return statistics.
const DefaultLookback = 365 * 24 * time.Hour

// Feed reads quotes from the store. It satisfies pricing.QuoteSource.
type Feed struct {
	store    store.Store
	lookback time.Duration
}

// NewFeed creates a feed. A non-positive lookback uses DefaultLookback.
func NewFeed(st store.Store, lookback time.Duration) *Feed {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Feed{store: st, lookback: lookback}
}

// Quotes returns a product's quotes in [from, to], oldest first.
func (f *Feed) Quotes(ctx context.Context, product string, from, to time.Time) ([]model.PriceQuote, error) {
	return f.store.GetPriceQuotes(ctx, product, from, to)
}

// CurrentPrice returns the latest quote on or before asOf within the
// lookback window.
func (f *Feed) CurrentPrice(ctx context.Context, product string, asOf time.Time) (decimal.Decimal, error) {
	quotes, err := f.store.GetPriceQuotes(ctx, product, asOf.Add(-f.lookback), asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if len(quotes) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s on or before %s", ErrNoQuote, product, asOf.Format(time.DateOnly))
	}
	return quotes[len(quotes)-1].Price, nil
}

// Return is one day's simple return, dated by the later quote.
type Return struct {
	Date  time.Time
	Value float64
}

// Returns computes daily simple returns over the lookback window ending at
// asOf. Gaps between quotes (weekends, holidays) are not interpolated.
func (f *Feed) Returns(ctx context.Context, product string, asOf time.Time) ([]Return, error) {
	quotes, err := f.store.GetPriceQuotes(ctx, product, asOf.Add(-f.lookback), asOf)
	if err != nil {
		return nil, err
	}
	if len(quotes) < 2 {
		return nil, fmt.Errorf("%w: %s has %d quotes", ErrInsufficientHistory, product, len(quotes))
	}
	out := make([]Return, 0, len(quotes)-1)
	for i := 1; i < len(quotes); i++ {
		prev := quotes[i-1].Price.InexactFloat64()
		if prev == 0 {
			continue
		}
		out = append(out, Return{
			Date:  quotes[i].PriceDate,
			Value: quotes[i].Price.InexactFloat64()/prev - 1,
		})
	}
	return out, nil
}

// Volatility returns the sample standard deviation of daily returns.
func (f *Feed) Volatility(ctx context.Context, product string, asOf time.Time) (float64, error) {
	rets, err := f.Returns(ctx, product, asOf)
	if err != nil {
		return 0, err
	}
	if len(rets) < 2 {
		return 0, fmt.Errorf("%w: %s has %d returns", ErrInsufficientHistory, product, len(rets))
	}
	return StdDev(values(rets)), nil
}

// Correlation returns the Pearson coefficient of two products' daily returns
// over the days both have a return.
func (f *Feed) Correlation(ctx context.Context, a, b string, asOf time.Time) (float64, error) {
	ra, err := f.Returns(ctx, a, asOf)
	if err != nil {
		return 0, err
	}
	rb, err := f.Returns(ctx, b, asOf)
	if err != nil {
		return 0, err
	}
	xs, ys := Align(ra, rb)
	if len(xs) < 3 {
		return 0, fmt.Errorf("%w: %s/%s share %d return days", ErrInsufficientHistory, a, b, len(xs))
	}
	return Pearson(xs, ys), nil
}

// Inputs are the market statistics a risk run needs.
type Inputs struct {
	Volatility map[string]float64
	Returns    map[string][]Return
	Matrix     *correlation.Matrix
	Warnings   []string
}

// RiskInputs loads volatility, returns and the correlation matrix for a set
// of products concurrently. Products without enough history are left out of
// the maps and reported as warnings; store failures abort the run.
func (f *Feed) RiskInputs(ctx context.Context, products []string, asOf time.Time) (*Inputs, error) {
	products = unique(products)
	rets := make([][]Return, len(products))
	missing := make([]error, len(products))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range products {
		g.Go(func() error {
			r, err := f.Returns(ctx, p, asOf)
			switch {
			case errors.Is(err, ErrInsufficientHistory):
				missing[i] = err
			case err != nil:
				return fmt.Errorf("returns %s: %w", p, err)
			default:
				rets[i] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := &Inputs{
		Volatility: make(map[string]float64, len(products)),
		Returns:    make(map[string][]Return, len(products)),
		Matrix:     correlation.NewMatrix(),
	}
	for i, p := range products {
		if missing[i] != nil || len(rets[i]) < 2 {
			in.Warnings = append(in.Warnings, fmt.Sprintf("no volatility for %s: insufficient price history", p))
			continue
		}
		in.Returns[p] = rets[i]
		in.Volatility[p] = StdDev(values(rets[i]))
	}
	for i, a := range products {
		for _, b := range products[i+1:] {
			ra, okA := in.Returns[a]
			rb, okB := in.Returns[b]
			if !okA || !okB {
				continue
			}
			xs, ys := Align(ra, rb)
			if len(xs) < 3 {
				continue
			}
			rho := Pearson(xs, ys)
			if math.IsNaN(rho) {
				continue
			}
			if err := in.Matrix.Set(a, b, clamp(rho)); err != nil {
				return nil, err
			}
		}
	}
	return in, nil
}

// Align pairs two return series by date.
func Align(a, b []Return) (xs, ys []float64) {
	byDay := make(map[time.Time]float64, len(b))
	for _, r := range b {
		byDay[r.Date] = r.Value
	}
	for _, r := range a {
		if v, ok := byDay[r.Date]; ok {
			xs = append(xs, r.Value)
			ys = append(ys, v)
		}
	}
	return xs, ys
}

// StdDev returns the sample standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// Mean returns the arithmetic mean.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Pearson returns the correlation coefficient of two equal-length series,
// or NaN when either is constant.
func Pearson(xs, ys []float64) float64 {
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

func clamp(rho float64) float64 {
	return math.Max(-1, math.Min(1, rho))
}

func values(rs []Return) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.Value
	}
	return out
}

func unique(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
