// Package charge resolves settlement charge items, fixed amounts or
// percentages of cargo value, into a total in settlement currency.
package charge

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/currency"
	"github.com/oiltrading/backoffice/internal/model"
)

var (
	ErrInvalidChargePercentage = errors.New("charge: percentage outside [0,100]")
	ErrNegativeAmount          = errors.New("charge: negative amount")
	ErrUnresolvedAmount        = errors.New("charge: amount not resolved")
	ErrInvalidChargeType       = errors.New("charge: unknown charge type")
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of aggregating a charge list.
type Result struct {
	Total decimal.Decimal
	// Resolved holds each input line's amount in settlement currency, in
	// input order. Skipped unresolved lines resolve to zero.
	Resolved []decimal.Decimal
	// Unresolved counts lines skipped because their amount was null.
	Unresolved int
}

// Aggregate resolves every charge and sums them. A null amount fails with
// ErrUnresolvedAmount.
func Aggregate(charges []model.SettlementCharge, cargoValue decimal.Decimal, settlementCurrency string, rates currency.Rates) (Result, error) {
	return aggregate(charges, cargoValue, settlementCurrency, rates, false)
}

// AggregateResolved is Aggregate but skips lines whose amount is still
// unknown. Used while a settlement is being drafted.
func AggregateResolved(charges []model.SettlementCharge, cargoValue decimal.Decimal, settlementCurrency string, rates currency.Rates) (Result, error) {
	return aggregate(charges, cargoValue, settlementCurrency, rates, true)
}

func aggregate(charges []model.SettlementCharge, cargoValue decimal.Decimal, settlementCurrency string, rates currency.Rates, skipUnresolved bool) (Result, error) {
	res := Result{
		Total:    decimal.Zero,
		Resolved: make([]decimal.Decimal, len(charges)),
	}
	for i, c := range charges {
		if !c.Amount.Valid {
			if skipUnresolved {
				res.Unresolved++
				continue
			}
			return Result{}, fmt.Errorf("%w: charge %d (%s)", ErrUnresolvedAmount, i, c.ChargeType)
		}
		amt, err := Resolve(c, cargoValue, settlementCurrency, rates)
		if err != nil {
			return Result{}, fmt.Errorf("charge %d (%s): %w", i, c.ChargeType, err)
		}
		res.Resolved[i] = amt
		res.Total = res.Total.Add(amt)
	}
	return res, nil
}

// Resolve returns one charge's amount in settlement currency, rounded to the
// currency's minor unit. Percentage charges apply to cargoValue, which is
// already in settlement currency.
func Resolve(c model.SettlementCharge, cargoValue decimal.Decimal, settlementCurrency string, rates currency.Rates) (decimal.Decimal, error) {
	if err := Validate(c); err != nil {
		return decimal.Zero, err
	}
	if !c.Amount.Valid {
		return decimal.Zero, ErrUnresolvedAmount
	}
	amount := c.Amount.Decimal
	if !c.IsFixed {
		return currency.Round(cargoValue.Mul(amount).Div(hundred), settlementCurrency), nil
	}
	from := c.Currency
	if from == "" {
		from = settlementCurrency
	}
	return rates.Convert(amount, from, settlementCurrency)
}

// Validate checks a charge line without resolving it. A null amount is
// valid here.
func Validate(c model.SettlementCharge) error {
	if !c.ChargeType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChargeType, c.ChargeType)
	}
	if !c.Amount.Valid {
		return nil
	}
	amount := c.Amount.Decimal
	if !c.IsFixed {
		if amount.IsNegative() || amount.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s", ErrInvalidChargePercentage, amount)
		}
		return nil
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	return nil
}

// FromTemplate seeds settlement charges from template items. Unless all is
// set, only items flagged IncludeByDefault are kept. Returned charges carry
// no ID or settlement reference.
func FromTemplate(items []model.SettlementCharge, all bool) []model.SettlementCharge {
	out := make([]model.SettlementCharge, 0, len(items))
	for _, it := range items {
		if !all && !it.IncludeByDefault {
			continue
		}
		it.ID = ""
		it.SettlementID = ""
		it.ResolvedAmount = decimal.Zero
		out = append(out, it)
	}
	return out
}
