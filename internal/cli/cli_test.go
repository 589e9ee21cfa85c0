package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "backofficectl ") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestStressStandardScenarios(t *testing.T) {
	out, err := run(t, "stress")
	if err != nil {
		t.Fatal(err)
	}
	var results []model.StressTestResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(results) != 4 {
		t.Errorf("expected 4 scenarios, got %d", len(results))
	}
}

func TestStressRejectsBadShock(t *testing.T) {
	if _, err := run(t, "stress", "--shock", "-1.5"); err == nil {
		t.Error("expected a shock below -100% to be rejected")
	}
}

func TestRiskRejectsUnknownMethod(t *testing.T) {
	_, err := run(t, "risk", "--method", "garch")
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Errorf("expected a config validation error, got %v", err)
	}
}

func TestImportPrices(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", marketdata.CombinedSheet)
	f.SetSheetRow(marketdata.CombinedSheet, "A1", &[]any{"ProductCode", "PriceDate", "Price"})
	f.SetSheetRow(marketdata.CombinedSheet, "A2", &[]any{"BRENT", "2024-03-01", 84.1})
	f.SetSheetRow(marketdata.CombinedSheet, "A3", &[]any{"BRENT", "2024-03-04", 83.7})
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "import-prices", path)
	if err != nil {
		t.Fatal(err)
	}
	var res marketdata.ImportResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Written != 2 {
		t.Errorf("expected 2 quotes written, got %+v", res)
	}
}

func TestPositionsBadDate(t *testing.T) {
	if _, err := run(t, "positions", "--as-of", "15/03/2024"); err == nil {
		t.Error("expected an error for a malformed date")
	}
}

func TestStatementMissingSettlement(t *testing.T) {
	if _, err := run(t, "statement", "nope"); err == nil {
		t.Error("expected not found")
	}
}
