// Package model defines the core domain types shared across the back office.
// All monetary values and quantities use shopspring/decimal, never float64.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownKind is returned when a settlement or contract leg carries a
// discriminant outside the known variants.
var ErrUnknownKind = errors.New("model: unknown contract kind")

// Unit is a quantity unit of measure.
type Unit string

const (
	UnitMT  Unit = "MT"  // metric tons
	UnitBBL Unit = "BBL" // barrels
)

// Valid reports whether u is a supported unit.
func (u Unit) Valid() bool {
	return u == UnitMT || u == UnitBBL
}

// Quantity carries the same cargo quantity expressed in both units.
type Quantity struct {
	MT  decimal.Decimal `json:"mt"`
	BBL decimal.Decimal `json:"bbl"`
}

// In returns the quantity expressed in unit u.
func (q Quantity) In(u Unit) decimal.Decimal {
	if u == UnitMT {
		return q.MT
	}
	return q.BBL
}

// IsNegative reports whether either side is below zero.
func (q Quantity) IsNegative() bool {
	return q.MT.IsNegative() || q.BBL.IsNegative()
}

// SettlementKind is the discriminant of the purchase/sales variants. It is
// the only field that decides which variant a settlement or contract leg is;
// Side rejects any other value, and settlement validation, contract number
// checks and netting all go through Side before using the kind.
type SettlementKind string

const (
	KindPurchase SettlementKind = "purchase"
	KindSales    SettlementKind = "sales"
)

// PositionSide is the book side a contract contributes to.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Side maps the contract kind onto the book: purchases are long, sales short.
func (k SettlementKind) Side() (PositionSide, error) {
	switch k {
	case KindPurchase:
		return SideLong, nil
	case KindSales:
		return SideShort, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// ContractStatus is the lifecycle state of a physical contract.
type ContractStatus string

const (
	ContractDraft     ContractStatus = "draft"
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
)

// ContractLeg is one purchase or sales contract as seen by netting.
// Read-only to this service; the contract management screens own it.
type ContractLeg struct {
	ContractID     string          `json:"contract_id" db:"contract_id"`
	ContractNumber string          `json:"contract_number" db:"contract_number"`
	Kind           SettlementKind  `json:"kind" db:"kind"`
	ProductCode    string          `json:"product_code" db:"product_code"`
	DeliveryMonth  string          `json:"delivery_month" db:"delivery_month"` // YYYY-MM
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	Unit           Unit            `json:"unit" db:"unit"`
	DensityFactor  decimal.Decimal `json:"density_factor" db:"density_factor"` // bbl per MT
	Price          decimal.Decimal `json:"price" db:"price"`                   // per product native unit
	Currency       string          `json:"currency" db:"currency"`
	Counterparty   string          `json:"counterparty" db:"counterparty"`
	Status         ContractStatus  `json:"status" db:"status"`
	TradeDate      time.Time       `json:"trade_date" db:"trade_date"`
}

// PriceQuote is one daily benchmark quote.
type PriceQuote struct {
	ProductCode string          `json:"product_code" db:"product_code"`
	PriceDate   time.Time       `json:"price_date" db:"price_date"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Currency    string          `json:"currency" db:"currency"`
	Unit        Unit            `json:"unit" db:"unit"`
	Source      string          `json:"source" db:"source"`
}
