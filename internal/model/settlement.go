package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus is a state of the settlement state machine.
type SettlementStatus string

const (
	StatusDraft           SettlementStatus = "draft"
	StatusPendingApproval SettlementStatus = "pending_approval"
	StatusActive          SettlementStatus = "active"
	StatusCompleted       SettlementStatus = "completed"
	StatusCancelled       SettlementStatus = "cancelled"
)

// Terminal reports whether no further transition can leave s.
func (s SettlementStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// DocumentType is the shipping document a settlement is based on.
type DocumentType string

const (
	DocBillOfLading        DocumentType = "bill_of_lading"
	DocQuantityCertificate DocumentType = "quantity_certificate"
	DocQualityCertificate  DocumentType = "quality_certificate"
	DocInvoice             DocumentType = "invoice"
	DocOutturnReport       DocumentType = "outturn_report"
)

// ChargeType enumerates ad-hoc settlement charges.
type ChargeType string

const (
	ChargeDemurrage   ChargeType = "demurrage"
	ChargeInspection  ChargeType = "inspection"
	ChargeInsurance   ChargeType = "insurance"
	ChargePortCharges ChargeType = "port_charges"
	ChargeFreight     ChargeType = "freight"
	ChargeAgency      ChargeType = "agency"
	ChargeOther       ChargeType = "other"
)

var validChargeTypes = map[ChargeType]bool{
	ChargeDemurrage:   true,
	ChargeInspection:  true,
	ChargeInsurance:   true,
	ChargePortCharges: true,
	ChargeFreight:     true,
	ChargeAgency:      true,
	ChargeOther:       true,
}

// Valid reports whether t is a known charge type.
func (t ChargeType) Valid() bool {
	return validChargeTypes[t]
}

// SettlementCharge belongs to exactly one ContractSettlement.
// A null Amount marks a charge whose value is not yet known.
// For IsFixed=false, Amount is a percentage of the owning settlement's
// CargoValue, resolved each time the settlement is computed.
type SettlementCharge struct {
	ID               string              `json:"id" db:"id"`
	SettlementID     string              `json:"settlement_id" db:"settlement_id"`
	ChargeType       ChargeType          `json:"charge_type" db:"charge_type"`
	Description      string              `json:"description" db:"description"`
	Amount           decimal.NullDecimal `json:"amount" db:"amount"`
	Currency         string              `json:"currency" db:"currency"`
	IsFixed          bool                `json:"is_fixed" db:"is_fixed"`
	IncludeByDefault bool                `json:"include_by_default" db:"include_by_default"`
	ResolvedAmount   decimal.Decimal     `json:"resolved_amount" db:"resolved_amount"` // settlement currency
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
}

// StatusNote records one status transition and the notes supplied with it.
type StatusNote struct {
	From      SettlementStatus `json:"from"`
	To        SettlementStatus `json:"to"`
	Notes     string           `json:"notes"`
	By        string           `json:"by"`
	Timestamp time.Time        `json:"timestamp"`
}

// ContractSettlement is one settlement document for one contract. Kind is
// the explicit discriminant between the purchase and sales variants; both
// share this shape and differ only in the owning contract.
type ContractSettlement struct {
	ID             string         `json:"id" db:"id"`
	Kind           SettlementKind `json:"kind" db:"kind"`
	ContractID     string         `json:"contract_id" db:"contract_id"`
	ContractNumber string         `json:"contract_number" db:"contract_number"`
	DocumentNumber string         `json:"document_number" db:"document_number"`
	DocumentType   DocumentType   `json:"document_type" db:"document_type"`
	DocumentDate   time.Time      `json:"document_date" db:"document_date"`
	ProductCode    string         `json:"product_code" db:"product_code"`

	ActualQuantity      Quantity        `json:"actual_quantity"`
	CalculationQuantity Quantity        `json:"calculation_quantity"`
	DensityFactor       decimal.Decimal `json:"density_factor" db:"density_factor"`

	BenchmarkPrice        decimal.Decimal `json:"benchmark_price" db:"benchmark_price"`
	BenchmarkPriceFormula string          `json:"benchmark_price_formula" db:"benchmark_price_formula"`
	BenchmarkUnit         Unit            `json:"benchmark_unit" db:"benchmark_unit"`
	PriceCurrency         string          `json:"price_currency" db:"price_currency"`
	PricingStartDate      time.Time       `json:"pricing_start_date" db:"pricing_start_date"`
	PricingEndDate        time.Time       `json:"pricing_end_date" db:"pricing_end_date"`
	QuotesUsed            int             `json:"quotes_used" db:"quotes_used"`

	BenchmarkAmount       decimal.Decimal `json:"benchmark_amount" db:"benchmark_amount"`
	AdjustmentAmount      decimal.Decimal `json:"adjustment_amount" db:"adjustment_amount"`
	CargoValue            decimal.Decimal `json:"cargo_value" db:"cargo_value"`
	TotalCharges          decimal.Decimal `json:"total_charges" db:"total_charges"`
	TotalSettlementAmount decimal.Decimal `json:"total_settlement_amount" db:"total_settlement_amount"`
	SettlementCurrency    string          `json:"settlement_currency" db:"settlement_currency"`
	ExchangeRate          decimal.Decimal `json:"exchange_rate" db:"exchange_rate"` // price currency -> settlement currency
	// ChargeRates holds rates into SettlementCurrency for charge currencies
	// other than PriceCurrency.
	ChargeRates map[string]decimal.Decimal `json:"charge_rates,omitempty"`

	Status      SettlementStatus   `json:"status" db:"status"`
	IsFinalized bool               `json:"is_finalized" db:"is_finalized"`
	Charges     []SettlementCharge `json:"charges"`
	History     []StatusNote       `json:"history"`

	CreatedBy  string    `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedBy string    `json:"modified_by" db:"modified_by"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`

	// Version is the optimistic-concurrency token. The store increments it
	// on every successful write and rejects writes carrying a stale value.
	Version int64 `json:"version" db:"version"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored
// slices.
func (s *ContractSettlement) Clone() *ContractSettlement {
	c := *s
	c.Charges = append([]SettlementCharge(nil), s.Charges...)
	c.History = append([]StatusNote(nil), s.History...)
	if s.ChargeRates != nil {
		c.ChargeRates = make(map[string]decimal.Decimal, len(s.ChargeRates))
		for k, v := range s.ChargeRates {
			c.ChargeRates[k] = v
		}
	}
	return &c
}
