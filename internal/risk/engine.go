// Package risk aggregates net position exposures into portfolio risk:
// value-at-risk (parametric, historical, EWMA and Monte Carlo), expected
// shortfall, diversification benefit, stress tests and VaR backtesting.
//
// Money values are decimals. Distribution math runs in float64 and every
// figure is converted back to decimal at its output scale.
package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/correlation"
	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/model"
)

var ErrUnknownMethod = errors.New("risk: unknown VaR method")

// Config tunes the estimators.
type Config struct {
	Method          model.VaRMethod
	EWMALambda      float64 // RiskMetrics decay, 0.94
	Simulations     int     // Monte Carlo draws
	Seed            int64   // Monte Carlo seed; fixed for reproducible snapshots
	MinObservations int     // history needed before historical/Monte Carlo are trusted
	Limiter         *correlation.ExposureLimiter
}

// DefaultConfig returns the parametric configuration used when none is set.
func DefaultConfig() Config {
	return Config{
		Method:          model.MethodParametric,
		EWMALambda:      0.94,
		Simulations:     10000,
		Seed:            42,
		MinObservations: 20,
	}
}

// Input is everything one snapshot is computed from. Volatilities are daily
// return standard deviations.
type Input struct {
	Positions  []model.NetPosition
	Matrix     *correlation.Matrix
	Volatility map[string]float64
	Returns    map[string][]marketdata.Return
	Warnings   []string
}

// Engine computes risk snapshots. It holds no state beyond its
// configuration and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine. Zero fields fall back to DefaultConfig.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Method == "" {
		cfg.Method = def.Method
	}
	if cfg.EWMALambda <= 0 || cfg.EWMALambda >= 1 {
		cfg.EWMALambda = def.EWMALambda
	}
	if cfg.Simulations <= 0 {
		cfg.Simulations = def.Simulations
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = def.MinObservations
	}
	return &Engine{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute builds a snapshot from in. The result has no ID; the caller
// assigns one when it stores the snapshot.
func (e *Engine) Compute(in Input, now time.Time) (*model.RiskMetrics, error) {
	book := NewBook(in.Positions)
	warnings := append([]string(nil), in.Warnings...)

	method := e.cfg.Method
	vols := in.Volatility
	if method == model.MethodEWMA {
		vols = e.ewmaVolatilities(book, in, &warnings)
	}

	par := parametric(book, vols, in.Matrix)
	warnings = append(warnings, par.warnings...)

	products, rows, histWarnings := scenarioMatrix(book, in.Returns)
	path := pnlPath(book, products, rows)

	productRisks, undiversified := par.products, par.undiversified
	var var95, var99, es95, es99 float64
	switch method {
	case model.MethodParametric, model.MethodEWMA:
		var95, var99 = par.sigma*Z95, par.sigma*Z99
		es95, es99 = par.sigma*shortfallFactor(0.95), par.sigma*shortfallFactor(0.99)

	case model.MethodHistorical, model.MethodMonteCarlo:
		if len(rows) < e.cfg.MinObservations {
			warnings = append(warnings, fmt.Sprintf("%s needs %d aligned observations, have %d: parametric used",
				method, e.cfg.MinObservations, len(rows)))
			method = model.MethodParametric
			var95, var99 = par.sigma*Z95, par.sigma*Z99
			es95, es99 = par.sigma*shortfallFactor(0.95), par.sigma*shortfallFactor(0.99)
			break
		}
		warnings = append(warnings, histWarnings...)
		sample, pnl := rows, path
		if method == model.MethodMonteCarlo {
			sample = e.monteCarlo(rows, &warnings)
			pnl = pnlPath(book, products, sample)
		}
		var95, es95 = tail(pnl, 0.95)
		var99, es99 = tail(pnl, 0.99)
		productRisks, undiversified = sampledRisks(book, products, sample, par.products)
		if var95 > undiversified+0.005 {
			warnings = append(warnings, fmt.Sprintf("%s VaR95 exceeds the sum of standalone VaR95 on this sample", method))
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	benefit := 0.0
	if undiversified > 0 {
		benefit = max(0, 1-var95/undiversified)
	}
	portfolioVol := 0.0
	if book.Value.IsPositive() {
		portfolioVol = par.sigma / book.Value.InexactFloat64()
	}

	m := &model.RiskMetrics{
		Method:                 method,
		PortfolioValue:         book.Value.Round(moneyScale),
		VaR95:                  money(var95),
		VaR99:                  money(var99),
		ExpectedShortfall95:    money(es95),
		ExpectedShortfall99:    money(es99),
		UndiversifiedVaR95:     money(undiversified),
		DiversificationBenefit: ratio(benefit),
		PortfolioVolatility:    ratio(portfolioVol),
		MaxDrawdown:            money(maxDrawdown(path)),
		NumberOfPositions:      book.Open,
		ProductRisks:           productRisks,
		Warnings:               warnings,
		Timestamp:              now,
	}
	if e.cfg.Limiter != nil {
		m.LimitBreaches = e.cfg.Limiter.Check(book.Exposure, in.Matrix)
	}
	return m, nil
}

func (e *Engine) ewmaVolatilities(b Book, in Input, warnings *[]string) map[string]float64 {
	vols := make(map[string]float64, len(b.Products))
	for _, p := range b.Products {
		rs := in.Returns[p]
		if len(rs) == 0 {
			if v, ok := in.Volatility[p]; ok {
				*warnings = append(*warnings, fmt.Sprintf("no return history for %s: sample volatility used", p))
				vols[p] = v
			}
			continue
		}
		vals := make([]float64, len(rs))
		for i, r := range rs {
			vals[i] = r.Value
		}
		vols[p] = ewmaVolatility(vals, e.cfg.EWMALambda)
	}
	return vols
}

func (e *Engine) monteCarlo(rows [][]float64, warnings *[]string) [][]float64 {
	mean, cov := covariance(rows)
	l, err := cholesky(cov)
	if err != nil {
		*warnings = append(*warnings, "covariance matrix not positive definite: Monte Carlo draws uncorrelated")
		l = diagonal(cov)
	}
	return simulate(mean, l, e.cfg.Simulations, e.cfg.Seed)
}

// PortfolioValue is Σ |positionValue| over positions.
func PortfolioValue(positions []model.NetPosition) decimal.Decimal {
	return NewBook(positions).Value
}
