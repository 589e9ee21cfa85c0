package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionType is the direction of a net position.
type PositionType string

const (
	PositionLong  PositionType = "Long"
	PositionShort PositionType = "Short"
	PositionFlat  PositionType = "Flat"
)

// NetPosition is derived per product and delivery month from all active
// contracts. Never persisted as a source of truth.
type NetPosition struct {
	ProductCode   string          `json:"product_code"`
	DeliveryMonth string          `json:"delivery_month"`
	Unit          Unit            `json:"unit"`
	Currency      string          `json:"currency,omitempty"` // of the contract prices
	LongQuantity  decimal.Decimal `json:"long_quantity"`
	ShortQuantity decimal.Decimal `json:"short_quantity"`
	NetQuantity   decimal.Decimal `json:"net_quantity"` // long - short
	PositionType  PositionType    `json:"position_type"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PositionValue decimal.Decimal `json:"position_value"` // net * current
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	AsOf          time.Time       `json:"as_of"`
}

// EnhancedNetPosition adds hedge matching data to a NetPosition.
type EnhancedNetPosition struct {
	NetPosition
	LongContracts  int             `json:"long_contracts"`
	ShortContracts int             `json:"short_contracts"`
	TotalMatched   decimal.Decimal `json:"total_matched"`
	HedgeRatio     decimal.Decimal `json:"hedge_ratio"`  // 0..1
	NetExposure    decimal.Decimal `json:"net_exposure"` // signed by dominant side
}
