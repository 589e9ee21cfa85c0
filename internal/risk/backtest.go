package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

var (
	ErrNoObservations    = errors.New("risk: backtest needs at least one observation")
	ErrInvalidConfidence = errors.New("risk: confidence must be in (0, 1)")
)

// Backtest counts the days whose realized loss exceeded the VaR predicted
// for them and runs Kupiec's proportion-of-failures test at 95%.
func Backtest(obs []model.BacktestObservation, confidence float64) (model.BacktestResult, error) {
	if len(obs) == 0 {
		return model.BacktestResult{}, ErrNoObservations
	}
	if confidence <= 0 || confidence >= 1 {
		return model.BacktestResult{}, fmt.Errorf("%w: %v", ErrInvalidConfidence, confidence)
	}

	exceptions := 0
	for _, o := range obs {
		if o.RealizedPnL.Neg().GreaterThan(o.PredictedVaR.Abs()) {
			exceptions++
		}
	}

	n := len(obs)
	p := 1 - confidence
	lr := kupiec(n, exceptions, p)
	return model.BacktestResult{
		Confidence:    decimal.NewFromFloat(confidence),
		Observations:  n,
		Exceptions:    exceptions,
		ExceptionRate: decimal.NewFromInt(int64(exceptions)).DivRound(decimal.NewFromInt(int64(n)), ratioScale),
		ExpectedRate:  ratio(p),
		KupiecLR:      ratio(lr),
		Passed:        lr <= chiSquare95,
	}, nil
}

// kupiec is the proportion-of-failures likelihood ratio
// -2 ln[(1-p)^(n-x) p^x / ((1-x/n)^(n-x) (x/n)^x)], χ²(1) under the null.
func kupiec(n, x int, p float64) float64 {
	nf, xf := float64(n), float64(x)
	obs := xf / nf
	logNull := xlogy(nf-xf, 1-p) + xlogy(xf, p)
	logAlt := xlogy(nf-xf, 1-obs) + xlogy(xf, obs)
	return max(0, -2*(logNull-logAlt))
}

// xlogy is x·ln(y) with 0·ln(0) = 0.
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}
