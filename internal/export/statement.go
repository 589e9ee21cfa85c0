// Package export renders settlement statements as PDF and XLSX documents.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/oiltrading/backoffice/internal/model"
)

const (
	SummarySheet = "summary"
	ChargesSheet = "charges"
	HistorySheet = "history"
)

type field struct {
	label string
	value string
}

// summary lists the header lines shared by both formats.
func summary(st *model.ContractSettlement) []field {
	fields := []field{
		{"Settlement", st.ID},
		{"Kind", string(st.Kind)},
		{"Contract", st.ContractNumber},
		{"Document", fmt.Sprintf("%s %s", st.DocumentType, st.DocumentNumber)},
		{"Document Date", date(st.DocumentDate)},
		{"Product", st.ProductCode},
		{"Status", string(st.Status)},
		{"Version", fmt.Sprintf("%d", st.Version)},
		{"Actual Quantity", fmt.Sprintf("%s MT / %s BBL", st.ActualQuantity.MT.StringFixed(3), st.ActualQuantity.BBL.StringFixed(3))},
		{"Calculation Quantity", fmt.Sprintf("%s MT / %s BBL", st.CalculationQuantity.MT.StringFixed(3), st.CalculationQuantity.BBL.StringFixed(3))},
		{"Benchmark Price", fmt.Sprintf("%s %s/%s", st.BenchmarkPrice.StringFixed(4), st.PriceCurrency, st.BenchmarkUnit)},
	}
	if st.BenchmarkPriceFormula != "" {
		fields = append(fields, field{"Price Formula", st.BenchmarkPriceFormula})
	}
	if !st.PricingStartDate.IsZero() {
		fields = append(fields, field{"Pricing Period", fmt.Sprintf("%s to %s (%d quotes)", date(st.PricingStartDate), date(st.PricingEndDate), st.QuotesUsed)})
	}
	return append(fields,
		field{"Exchange Rate", fmt.Sprintf("%s %s->%s", st.ExchangeRate.String(), st.PriceCurrency, st.SettlementCurrency)},
		field{"Benchmark Amount", amount(st.BenchmarkAmount, st.SettlementCurrency)},
		field{"Adjustment", amount(st.AdjustmentAmount, st.SettlementCurrency)},
		field{"Cargo Value", amount(st.CargoValue, st.SettlementCurrency)},
		field{"Total Charges", amount(st.TotalCharges, st.SettlementCurrency)},
		field{"Total Settlement Amount", amount(st.TotalSettlementAmount, st.SettlementCurrency)},
	)
}

// BuildStatementPDF renders a one-document statement with a charges table.
func BuildStatementPDF(st *model.ContractSettlement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Settlement %s", st.ID), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, "Settlement Statement")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	for _, f := range summary(st) {
		pdf.CellFormat(55, 6, f.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, f.value, "", 1, "L", false, 0, "")
	}
	if st.IsFinalized {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "FINAL", "", 1, "L", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(65, 6, "Description", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Entered", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Amount "+st.SettlementCurrency, "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, c := range st.Charges {
		pdf.CellFormat(35, 6, string(c.ChargeType), "1", 0, "L", false, 0, "")
		pdf.CellFormat(65, 6, c.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, entered(c), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, resolved(c), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("export: pdf %s: %w", st.ID, err)
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders the statement as a workbook with summary,
// charges and history sheets. Amounts are written as numbers.
func BuildStatementXLSX(st *model.ContractSettlement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{ChargesSheet, HistorySheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	_ = f.SetCellValue(SummarySheet, "A1", "Settlement Statement")
	for i, fl := range summary(st) {
		row := i + 3
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", row), fl.label)
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", row), fl.value)
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 26)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)

	_ = f.SetSheetRow(ChargesSheet, "A1", &[]any{"Type", "Description", "Amount", "Currency", "Fixed", "Resolved Amount"})
	for i, c := range st.Charges {
		var amt any = ""
		if c.Amount.Valid {
			amt = c.Amount.Decimal.InexactFloat64()
		}
		row := []any{string(c.ChargeType), c.Description, amt, c.Currency, c.IsFixed, c.ResolvedAmount.InexactFloat64()}
		_ = f.SetSheetRow(ChargesSheet, fmt.Sprintf("A%d", i+2), &row)
	}

	_ = f.SetSheetRow(HistorySheet, "A1", &[]any{"From", "To", "By", "Notes", "Timestamp"})
	for i, h := range st.History {
		row := []any{string(h.From), string(h.To), h.By, h.Notes, h.Timestamp.UTC().Format(time.RFC3339)}
		_ = f.SetSheetRow(HistorySheet, fmt.Sprintf("A%d", i+2), &row)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("export: xlsx %s: %w", st.ID, err)
	}
	return buf.Bytes(), nil
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func amount(v decimal.Decimal, currency string) string {
	return v.StringFixed(2) + " " + currency
}

func entered(c model.SettlementCharge) string {
	if !c.Amount.Valid {
		return "pending"
	}
	if !c.IsFixed {
		return c.Amount.Decimal.String() + "%"
	}
	return c.Amount.Decimal.StringFixed(2) + " " + c.Currency
}

func resolved(c model.SettlementCharge) string {
	if !c.Amount.Valid {
		return "-"
	}
	return c.ResolvedAmount.StringFixed(2)
}
