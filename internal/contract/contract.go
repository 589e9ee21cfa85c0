// Package contract handles physical oil contract number parsing, the product
// catalog, and delivery month validation.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

// Contract number prefixes.
const (
	PrefixPurchase = "PC"
	PrefixSales    = "SC"
)

// numberRegex matches: {PC|SC}-{YYYY}-{NNNN}
// Example: PC-2024-0017
var numberRegex = regexp.MustCompile(`^(PC|SC)-(\d{4})-(\d{4,6})$`)

// DeliveryMonthLayout is the canonical delivery month format.
const DeliveryMonthLayout = "2006-01"

var (
	ErrInvalidContractNumber = errors.New("contract: invalid contract number format")
	ErrKindMismatch          = errors.New("contract: contract number does not match settlement kind")
	ErrUnknownProduct        = errors.New("contract: unknown product")
	ErrInvalidDeliveryMonth  = errors.New("contract: invalid delivery month")
)

// Number is a parsed contract number.
type Number struct {
	Raw      string               `json:"raw"`
	Kind     model.SettlementKind `json:"kind"`
	Year     int                  `json:"year"`
	Sequence int                  `json:"sequence"`
}

// ParseNumber parses and validates a contract number string.
// Format: {PC|SC}-{YYYY}-{NNNN}
func ParseNumber(s string) (*Number, error) {
	matches := numberRegex.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected PC-YYYY-NNNN or SC-YYYY-NNNN)",
			ErrInvalidContractNumber, s)
	}

	kind := model.KindPurchase
	if matches[1] == PrefixSales {
		kind = model.KindSales
	}
	year, _ := strconv.Atoi(matches[2])
	seq, _ := strconv.Atoi(matches[3])
	if seq == 0 {
		return nil, fmt.Errorf("%w: %s (sequence must be > 0)", ErrInvalidContractNumber, s)
	}

	return &Number{
		Raw:      matches[0],
		Kind:     kind,
		Year:     year,
		Sequence: seq,
	}, nil
}

// FormatNumber builds a contract number for kind.
func FormatNumber(kind model.SettlementKind, year, seq int) (string, error) {
	switch kind {
	case model.KindPurchase:
		return fmt.Sprintf("%s-%04d-%04d", PrefixPurchase, year, seq), nil
	case model.KindSales:
		return fmt.Sprintf("%s-%04d-%04d", PrefixSales, year, seq), nil
	default:
		return "", fmt.Errorf("%w: %q", model.ErrUnknownKind, string(kind))
	}
}

// CheckKind verifies a contract number belongs to a contract of kind.
func CheckKind(number string, kind model.SettlementKind) error {
	n, err := ParseNumber(number)
	if err != nil {
		return err
	}
	if _, err := kind.Side(); err != nil {
		return err
	}
	if n.Kind != kind {
		return fmt.Errorf("%w: %s is a %s contract, not %s", ErrKindMismatch, number, n.Kind, kind)
	}
	return nil
}

// Product describes a tradable benchmark product.
type Product struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	NativeUnit     model.Unit      `json:"native_unit"`
	DefaultDensity decimal.Decimal `json:"default_density"` // bbl per MT
	Currency       string          `json:"currency"`
}

var catalog = map[string]Product{
	"BRENT":  {Code: "BRENT", Name: "Dated Brent", NativeUnit: model.UnitBBL, DefaultDensity: decimal.RequireFromString("7.45"), Currency: "USD"},
	"WTI":    {Code: "WTI", Name: "WTI Cushing", NativeUnit: model.UnitBBL, DefaultDensity: decimal.RequireFromString("7.45"), Currency: "USD"},
	"GASOIL": {Code: "GASOIL", Name: "Gasoil 10ppm", NativeUnit: model.UnitMT, DefaultDensity: decimal.RequireFromString("7.45"), Currency: "USD"},
	"JET":    {Code: "JET", Name: "Jet Kerosene", NativeUnit: model.UnitBBL, DefaultDensity: decimal.RequireFromString("7.88"), Currency: "USD"},
	"380CST": {Code: "380CST", Name: "HSFO 380cst", NativeUnit: model.UnitMT, DefaultDensity: decimal.RequireFromString("6.35"), Currency: "USD"},
	"MF05":   {Code: "MF05", Name: "VLSFO 0.5%", NativeUnit: model.UnitMT, DefaultDensity: decimal.RequireFromString("6.35"), Currency: "USD"},
}

// LookupProduct returns the catalog entry for code.
func LookupProduct(code string) (Product, error) {
	p, ok := catalog[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrUnknownProduct, code)
	}
	return p, nil
}

// Products returns the catalog sorted by code.
func Products() []Product {
	out := make([]Product, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ParseDeliveryMonth parses "YYYY-MM" into the first day of that month.
func ParseDeliveryMonth(s string) (time.Time, error) {
	t, err := time.Parse(DeliveryMonthLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (expected YYYY-MM)", ErrInvalidDeliveryMonth, s)
	}
	return t, nil
}

// DeliveryMonthOf formats t as a delivery month key.
func DeliveryMonthOf(t time.Time) string {
	return t.UTC().Format(DeliveryMonthLayout)
}

// Density returns factor when it is positive, else the product default.
func Density(p Product, factor decimal.Decimal) decimal.Decimal {
	if factor.IsPositive() {
		return factor
	}
	return p.DefaultDensity
}
