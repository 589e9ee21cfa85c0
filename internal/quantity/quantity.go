// Package quantity converts cargo quantities between metric tons and barrels
// using a contract-specific density factor (barrels per metric ton).
package quantity

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

// ErrInvalidArgument is returned for a non-positive density factor or an
// unsupported unit.
var ErrInvalidArgument = errors.New("quantity: invalid argument")

// Scale is the number of decimal places kept on converted quantities.
const Scale = 6

func checkFactor(factor decimal.Decimal) error {
	if factor.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: density factor %s must be > 0", ErrInvalidArgument, factor)
	}
	return nil
}

// ToBBL converts metric tons to barrels.
func ToBBL(mt, factor decimal.Decimal) (decimal.Decimal, error) {
	if err := checkFactor(factor); err != nil {
		return decimal.Zero, err
	}
	return mt.Mul(factor), nil
}

// ToMT converts barrels to metric tons. The result is rounded to Scale
// places, so MT -> BBL -> MT returns the input within 1e-6.
func ToMT(bbl, factor decimal.Decimal) (decimal.Decimal, error) {
	if err := checkFactor(factor); err != nil {
		return decimal.Zero, err
	}
	return bbl.DivRound(factor, Scale), nil
}

// Convert expresses q (given in unit from) in unit to.
func Convert(q decimal.Decimal, from, to model.Unit, factor decimal.Decimal) (decimal.Decimal, error) {
	if !from.Valid() || !to.Valid() {
		return decimal.Zero, fmt.Errorf("%w: unit %q -> %q", ErrInvalidArgument, from, to)
	}
	if from == to {
		return q, nil
	}
	if from == model.UnitMT {
		return ToBBL(q, factor)
	}
	return ToMT(q, factor)
}

// Complete fills whichever side of q is zero from the other side. When both
// sides are given they are returned untouched; the factor is only checked
// when a conversion is needed.
func Complete(q model.Quantity, factor decimal.Decimal) (model.Quantity, error) {
	switch {
	case !q.MT.IsZero() && !q.BBL.IsZero():
		return q, nil
	case q.MT.IsZero() && q.BBL.IsZero():
		return q, nil
	case q.BBL.IsZero():
		bbl, err := ToBBL(q.MT, factor)
		if err != nil {
			return q, err
		}
		q.BBL = bbl
	default:
		mt, err := ToMT(q.BBL, factor)
		if err != nil {
			return q, err
		}
		q.MT = mt
	}
	return q, nil
}
