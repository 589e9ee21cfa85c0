// Package settlement computes contract settlement amounts and owns the
// settlement status state machine.
//
// TotalSettlementAmount = CargoValue + AdjustmentAmount + TotalCharges, all in
// settlement currency at its minor unit. CargoValue is the benchmark amount
// (calculation quantity in the benchmark unit × benchmark price) converted
// from the price currency. A formula price is in the currency its formula or
// quotes state; a fixed price without one is taken to be in settlement
// currency.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/charge"
	"github.com/oiltrading/backoffice/internal/contract"
	"github.com/oiltrading/backoffice/internal/currency"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/pricing"
	"github.com/oiltrading/backoffice/internal/quantity"
)

// Calculator evaluates settlement figures. Quote lookups for formula
// pricing go through the injected source; everything else is pure.
type Calculator struct {
	quotes pricing.QuoteSource
}

// NewCalculator creates a calculator. quotes may be nil when only fixed
// prices are used.
func NewCalculator(quotes pricing.QuoteSource) *Calculator {
	return &Calculator{quotes: quotes}
}

// Validate rejects settlement inputs that cannot be computed.
func Validate(s *model.ContractSettlement) error {
	if _, err := s.Kind.Side(); err != nil {
		return invalid("kind", "%v", err)
	}
	if strings.TrimSpace(s.ContractID) == "" {
		return invalid("contract_id", "required")
	}
	if s.ContractNumber != "" {
		if err := contract.CheckKind(s.ContractNumber, s.Kind); err != nil {
			return invalid("contract_number", "%v", err)
		}
	}
	if s.ActualQuantity.IsNegative() {
		return invalid("actual_quantity", "must not be negative")
	}
	if s.CalculationQuantity.IsNegative() {
		return invalid("calculation_quantity", "must not be negative")
	}
	if s.CalculationQuantity.MT.IsZero() && s.CalculationQuantity.BBL.IsZero() {
		return invalid("calculation_quantity", "required")
	}
	if s.DensityFactor.IsNegative() {
		return invalid("density_factor", "must not be negative")
	}
	if currency.Normalize(s.SettlementCurrency) == "" {
		return invalid("settlement_currency", "required")
	}
	if s.ExchangeRate.IsNegative() {
		return invalid("exchange_rate", "must not be negative")
	}
	if s.BenchmarkPriceFormula == "" {
		if s.BenchmarkPrice.IsNegative() {
			return invalid("benchmark_price", "must not be negative")
		}
		if s.BenchmarkPrice.IsZero() {
			return invalid("benchmark_price", "a fixed price or a price formula is required")
		}
	} else if !s.PricingStartDate.IsZero() && !s.PricingEndDate.IsZero() && s.PricingStartDate.After(s.PricingEndDate) {
		return invalid("pricing_window", "start date is after end date")
	}
	if s.BenchmarkUnit != "" && !s.BenchmarkUnit.Valid() {
		return invalid("benchmark_unit", "unsupported unit %q", s.BenchmarkUnit)
	}
	for i, c := range s.Charges {
		if err := charge.Validate(c); err != nil {
			return invalid(fmt.Sprintf("charges[%d]", i), "%v", err)
		}
	}
	return nil
}

// Compute fills the derived figures of s in place: benchmark price (when
// formula priced), quantities in both units, benchmark amount, cargo value,
// per-charge resolved amounts and the totals. Charges whose amount is still
// unknown contribute zero.
func (c *Calculator) Compute(ctx context.Context, s *model.ContractSettlement) error {
	if err := Validate(s); err != nil {
		return err
	}
	s.SettlementCurrency = currency.Normalize(s.SettlementCurrency)
	s.PriceCurrency = currency.Normalize(s.PriceCurrency)

	var formula *pricing.Formula
	if s.BenchmarkPriceFormula != "" {
		f, err := pricing.ParseFormula(s.BenchmarkPriceFormula)
		if err != nil {
			return invalid("benchmark_price_formula", "%v", err)
		}
		formula = f
		if s.ProductCode == "" {
			s.ProductCode = f.ProductCode
		}
	}

	unit, density := c.benchmarkUnit(s, formula)
	s.BenchmarkUnit = unit
	if density.IsPositive() {
		s.DensityFactor = density
	}

	// 1. Benchmark price.
	if formula != nil {
		if c.quotes == nil {
			return fmt.Errorf("%w: no quote source configured", pricing.ErrNoPriceDataInWindow)
		}
		if s.PricingStartDate.IsZero() || s.PricingEndDate.IsZero() {
			return invalid("pricing_window", "formula pricing needs a start and end date")
		}
		res, err := formula.Evaluate(ctx, c.quotes, s.PricingStartDate, s.PricingEndDate)
		if err != nil {
			if errors.Is(err, pricing.ErrInvalidWindow) {
				return invalid("pricing_window", "%v", err)
			}
			return err
		}
		s.BenchmarkPrice = res.Price
		s.QuotesUsed = res.QuotesUsed

		switch {
		case res.Currency == "" && s.PriceCurrency == "":
			return invalid("price_currency", "required: neither the formula nor its quotes name a currency")
		case s.PriceCurrency == "":
			s.PriceCurrency = res.Currency
		case res.Currency != "" && res.Currency != s.PriceCurrency:
			return invalid("price_currency", "%s does not match the %s benchmark quoted in %s", s.PriceCurrency, formula.ProductCode, res.Currency)
		}
	} else if s.PriceCurrency == "" {
		s.PriceCurrency = s.SettlementCurrency
	}

	// 2. Benchmark amount in the benchmark unit.
	calcQty := s.CalculationQuantity
	if calcQty.In(unit).IsZero() {
		completed, err := quantity.Complete(calcQty, s.DensityFactor)
		if err != nil {
			return invalid("density_factor", "%v", err)
		}
		calcQty = completed
	} else if s.DensityFactor.IsPositive() {
		if completed, err := quantity.Complete(calcQty, s.DensityFactor); err == nil {
			calcQty = completed
		}
	}
	s.CalculationQuantity = calcQty
	if s.DensityFactor.IsPositive() {
		if actual, err := quantity.Complete(s.ActualQuantity, s.DensityFactor); err == nil {
			s.ActualQuantity = actual
		}
	}
	s.BenchmarkAmount = calcQty.In(unit).Mul(s.BenchmarkPrice)

	// 3. Cargo value in settlement currency.
	cargo, err := currency.Convert(s.BenchmarkAmount, s.PriceCurrency, s.SettlementCurrency, s.ExchangeRate)
	if err != nil {
		return fmt.Errorf("cargo value: %w", err)
	}
	s.CargoValue = cargo

	// 4. Charges.
	res, err := charge.AggregateResolved(s.Charges, cargo, s.SettlementCurrency, chargeRates(s))
	if err != nil {
		return err
	}
	for i := range s.Charges {
		s.Charges[i].ResolvedAmount = res.Resolved[i]
	}
	s.TotalCharges = res.Total

	// 5. Total.
	s.AdjustmentAmount = currency.Round(s.AdjustmentAmount, s.SettlementCurrency)
	s.TotalSettlementAmount = s.CargoValue.Add(s.AdjustmentAmount).Add(s.TotalCharges)
	return nil
}

// benchmarkUnit picks the unit the benchmark price is quoted in and the
// density used to reach it: formula unit, then the settlement's stated unit,
// then the product's native unit, then barrels.
func (c *Calculator) benchmarkUnit(s *model.ContractSettlement, f *pricing.Formula) (model.Unit, decimal.Decimal) {
	product, perr := contract.LookupProduct(s.ProductCode)

	density := s.DensityFactor
	if perr == nil {
		density = contract.Density(product, density)
	}

	switch {
	case f != nil && f.Unit != "":
		return f.Unit, density
	case s.BenchmarkUnit != "":
		return s.BenchmarkUnit, density
	case perr == nil:
		return product.NativeUnit, density
	default:
		return model.UnitBBL, density
	}
}

func chargeRates(s *model.ContractSettlement) currency.Rates {
	rates := currency.Rates(s.ChargeRates)
	if s.PriceCurrency != s.SettlementCurrency && s.ExchangeRate.IsPositive() {
		if _, ok := rates[s.PriceCurrency]; !ok {
			rates = rates.With(s.PriceCurrency, s.ExchangeRate)
		}
	}
	return rates
}
