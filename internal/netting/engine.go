// Package netting derives net positions per product and delivery month from
// active purchase and sales contract legs.
//
// Purchases are long, sales short. Quantities are netted in the product's
// native unit; long and short are matched against each other up to the
// smaller side, which gives the hedge ratio and the unhedged net exposure.
// Matching is quantity-only: no lot identity survives netting.
package netting

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/contract"
	"github.com/oiltrading/backoffice/internal/currency"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/quantity"
)

const (
	priceScale = 4
	ratioScale = 6
	moneyScale = 2
)

// ErrMixedCurrency is returned when the legs of one product and delivery
// month are priced in different currencies.
var ErrMixedCurrency = errors.New("netting: legs priced in different currencies")

type key struct {
	product string
	month   string
}

type book struct {
	unit          model.Unit
	currency      string
	long, short   decimal.Decimal
	longNotional  decimal.Decimal // Σ qty × price, long side
	shortNotional decimal.Decimal
	longCount     int
	shortCount    int
}

// Compute nets legs into one enhanced position per (product, delivery month),
// sorted by product then month. prices maps product code to the current
// market price in the product's native unit; a product with no entry is
// valued at zero with no unrealized P&L. Cancelled legs are ignored.
func Compute(legs []model.ContractLeg, prices map[string]decimal.Decimal, asOf time.Time) ([]model.EnhancedNetPosition, error) {
	books := make(map[key]*book)
	for _, leg := range legs {
		if leg.Status == model.ContractCancelled {
			continue
		}
		side, err := leg.Kind.Side()
		if err != nil {
			return nil, fmt.Errorf("leg %s: %w", leg.ContractID, err)
		}
		if leg.Quantity.IsNegative() {
			return nil, fmt.Errorf("leg %s: %w: negative quantity %s", leg.ContractID, quantity.ErrInvalidArgument, leg.Quantity)
		}

		unit, qty, err := native(leg)
		if err != nil {
			return nil, fmt.Errorf("leg %s: %w", leg.ContractID, err)
		}

		k := key{product: leg.ProductCode, month: leg.DeliveryMonth}
		b, ok := books[k]
		if !ok {
			b = &book{unit: unit}
			books[k] = b
		}
		if unit != b.unit {
			// Uncatalogued product booked in mixed units.
			if qty, err = quantity.Convert(qty, unit, b.unit, leg.DensityFactor); err != nil {
				return nil, fmt.Errorf("leg %s: %w", leg.ContractID, err)
			}
		}
		if ccy := currency.Normalize(leg.Currency); ccy != "" {
			switch b.currency {
			case "":
				b.currency = ccy
			case ccy:
			default:
				return nil, fmt.Errorf("leg %s: %w: %s %s has %s and %s",
					leg.ContractID, ErrMixedCurrency, k.product, k.month, b.currency, ccy)
			}
		}
		notional := qty.Mul(leg.Price)
		switch side {
		case model.SideLong:
			b.long = b.long.Add(qty)
			b.longNotional = b.longNotional.Add(notional)
			b.longCount++
		case model.SideShort:
			b.short = b.short.Add(qty)
			b.shortNotional = b.shortNotional.Add(notional)
			b.shortCount++
		}
	}

	out := make([]model.EnhancedNetPosition, 0, len(books))
	for k, b := range books {
		out = append(out, position(k, b, prices, asOf))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductCode != out[j].ProductCode {
			return out[i].ProductCode < out[j].ProductCode
		}
		return out[i].DeliveryMonth < out[j].DeliveryMonth
	})
	return out, nil
}

// Plain strips the hedge matching data.
func Plain(enhanced []model.EnhancedNetPosition) []model.NetPosition {
	out := make([]model.NetPosition, len(enhanced))
	for i, e := range enhanced {
		out[i] = e.NetPosition
	}
	return out
}

func position(k key, b *book, prices map[string]decimal.Decimal, asOf time.Time) model.EnhancedNetPosition {
	net := b.long.Sub(b.short)
	matched := decimal.Min(b.long, b.short)
	larger := decimal.Max(b.long, b.short)

	hedge := decimal.Zero
	if larger.IsPositive() {
		hedge = matched.DivRound(larger, ratioScale)
	}

	avgLong := average(b.longNotional, b.long)
	avgShort := average(b.shortNotional, b.short)

	var (
		posType  model.PositionType
		avgPrice decimal.Decimal
		exposure = larger.Sub(matched)
	)
	switch net.Sign() {
	case 1:
		posType, avgPrice = model.PositionLong, avgLong
	case -1:
		posType, avgPrice = model.PositionShort, avgShort
		exposure = exposure.Neg()
	default:
		posType = model.PositionFlat
	}

	realized := decimal.Zero
	if matched.IsPositive() {
		realized = avgShort.Sub(avgLong).Mul(matched).Round(moneyScale)
	}

	current, priced := prices[k.product]
	unrealized := decimal.Zero
	if priced && !net.IsZero() {
		unrealized = current.Sub(avgPrice).Mul(net).Round(moneyScale)
	}

	return model.EnhancedNetPosition{
		NetPosition: model.NetPosition{
			ProductCode:   k.product,
			DeliveryMonth: k.month,
			Unit:          b.unit,
			Currency:      b.currency,
			LongQuantity:  b.long,
			ShortQuantity: b.short,
			NetQuantity:   net,
			PositionType:  posType,
			AveragePrice:  avgPrice,
			CurrentPrice:  current,
			PositionValue: net.Mul(current).Round(moneyScale),
			RealizedPnL:   realized,
			UnrealizedPnL: unrealized,
			TotalPnL:      realized.Add(unrealized),
			AsOf:          asOf,
		},
		LongContracts:  b.longCount,
		ShortContracts: b.shortCount,
		TotalMatched:   matched,
		HedgeRatio:     hedge,
		NetExposure:    exposure,
	}
}

// native returns the leg quantity in its product's native unit. Products
// outside the catalog net in the leg's own unit.
func native(leg model.ContractLeg) (model.Unit, decimal.Decimal, error) {
	unit := leg.Unit
	if unit == "" {
		unit = model.UnitBBL
	}
	p, err := contract.LookupProduct(leg.ProductCode)
	if err != nil {
		if !unit.Valid() {
			return "", decimal.Zero, fmt.Errorf("%w: unit %q", quantity.ErrInvalidArgument, unit)
		}
		return unit, leg.Quantity, nil
	}
	qty, err := quantity.Convert(leg.Quantity, unit, p.NativeUnit, contract.Density(p, leg.DensityFactor))
	if err != nil {
		return "", decimal.Zero, err
	}
	return p.NativeUnit, qty, nil
}

func average(notional, qty decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return notional.DivRound(qty, priceScale)
}
