package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/oiltrading/backoffice/internal/contract"
	"github.com/oiltrading/backoffice/internal/currency"
	"github.com/oiltrading/backoffice/internal/metrics"
	"github.com/oiltrading/backoffice/internal/model"
	"github.com/oiltrading/backoffice/internal/store"
)

// CombinedSheet is the workbook sheet holding every product's quotes. When
// present it is the only sheet read.
const CombinedSheet = "All_Prices"

const importBatchSize = 500

var ErrInvalidWorkbook = errors.New("marketdata: invalid price workbook")

// ImportResult summarizes one workbook import.
type ImportResult struct {
	Sheets   int      `json:"sheets"`
	Rows     int      `json:"rows"`
	Written  int      `json:"written"`
	Rejected []string `json:"rejected,omitempty"`
}

// Importer loads benchmark quote workbooks into the store.
type Importer struct {
	store store.Store
}

// NewImporter creates an importer.
func NewImporter(st store.Store) *Importer {
	return &Importer{store: st}
}

// ImportFile imports the workbook at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()
	return im.importWorkbook(ctx, f, path)
}

// Import imports a workbook read from r. source labels quotes that carry no
// Source column.
func (im *Importer) Import(ctx context.Context, r io.Reader, source string) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()
	return im.importWorkbook(ctx, f, source)
}

func (im *Importer) importWorkbook(ctx context.Context, f *excelize.File, source string) (*ImportResult, error) {
	quotes, res, err := ParseWorkbook(f, source)
	if err != nil {
		return nil, err
	}
	for start := 0; start < len(quotes); start += importBatchSize {
		end := min(start+importBatchSize, len(quotes))
		n, err := im.store.InsertPriceQuotes(ctx, quotes[start:end])
		if err != nil {
			return nil, fmt.Errorf("insert quotes: %w", err)
		}
		res.Written += n
	}
	metrics.PriceQuotesImported.Add(float64(res.Written))
	slog.Info("price workbook imported",
		"source", source,
		"sheets", res.Sheets,
		"rows", res.Rows,
		"written", res.Written,
		"rejected", len(res.Rejected),
	)
	return res, nil
}

// ParseWorkbook reads quotes from either the combined sheet or one sheet per
// product. Rows that cannot be parsed are reported in the result and skipped.
func ParseWorkbook(f *excelize.File, source string) ([]model.PriceQuote, *ImportResult, error) {
	sheets := f.GetSheetList()
	for _, s := range sheets {
		if s == CombinedSheet {
			sheets = []string{CombinedSheet}
			break
		}
	}

	res := &ImportResult{}
	var quotes []model.PriceQuote
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}
		cols, err := columnIndex(rows[0])
		if err != nil {
			return nil, nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		res.Sheets++
		for i, row := range rows[1:] {
			if blank(row) {
				continue
			}
			res.Rows++
			q, err := parseRow(row, cols, sheet, source)
			if err != nil {
				res.Rejected = append(res.Rejected, fmt.Sprintf("%s!%d: %v", sheet, i+2, err))
				continue
			}
			quotes = append(quotes, q)
		}
	}
	return quotes, res, nil
}

type columns struct {
	product, date, price, currency, unit, source int
}

func columnIndex(header []string) (columns, error) {
	c := columns{product: -1, date: -1, price: -1, currency: -1, unit: -1, source: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "productcode", "product_code", "product":
			c.product = i
		case "pricedate", "price_date", "date":
			c.date = i
		case "price", "closeprice", "close_price", "settle":
			// Price wins over ClosePrice when both are present.
			if c.price == -1 || strings.EqualFold(strings.TrimSpace(h), "price") {
				c.price = i
			}
		case "currency":
			c.currency = i
		case "unit":
			c.unit = i
		case "source":
			c.source = i
		}
	}
	if c.date == -1 || c.price == -1 {
		return c, fmt.Errorf("%w: header needs PriceDate and Price columns, got %v", ErrInvalidWorkbook, header)
	}
	return c, nil
}

func parseRow(row []string, c columns, sheet, source string) (model.PriceQuote, error) {
	product := strings.ToUpper(strings.TrimSpace(cell(row, c.product)))
	if product == "" {
		product = strings.ToUpper(sheet)
	}
	if product == strings.ToUpper(CombinedSheet) {
		return model.PriceQuote{}, fmt.Errorf("missing product code")
	}

	date, err := parseDate(cell(row, c.date))
	if err != nil {
		return model.PriceQuote{}, err
	}

	price, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(cell(row, c.price)), ",", ""))
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("price %q: %w", cell(row, c.price), err)
	}
	if !price.IsPositive() {
		return model.PriceQuote{}, fmt.Errorf("price %s must be positive", price)
	}

	unit := model.Unit(strings.ToUpper(strings.TrimSpace(cell(row, c.unit))))
	if unit == "" {
		if p, err := contract.LookupProduct(product); err == nil {
			unit = p.NativeUnit
		} else {
			unit = model.UnitBBL
		}
	}
	if !unit.Valid() {
		return model.PriceQuote{}, fmt.Errorf("unsupported unit %q", unit)
	}

	ccy := currency.Normalize(cell(row, c.currency))
	if ccy == "" {
		ccy = "USD"
	}
	src := strings.TrimSpace(cell(row, c.source))
	if src == "" {
		src = source
	}

	return model.PriceQuote{
		ProductCode: product,
		PriceDate:   date,
		Price:       price,
		Currency:    ccy,
		Unit:        unit,
		Source:      src,
	}, nil
}

var dateLayouts = []string{time.DateOnly, "2006-01-02 15:04:05", time.RFC3339, "01-02-06", "1/2/2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	// Excel serial date.
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
