package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/oiltrading/backoffice/internal/export"
	"github.com/oiltrading/backoffice/internal/model"
)

func newImportPricesCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "import-prices <workbook.xlsx>",
		Short: "Import benchmark quotes from a price workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := s.app.Importer.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func newPositionsCmd(s *session) *cobra.Command {
	var asOf string
	var enhanced bool
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Report net positions per product and delivery month",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			if enhanced {
				positions, err := s.app.Positions.ComputeEnhancedNetPositions(cmd.Context(), at)
				if err != nil {
					return err
				}
				return printJSON(cmd, positions)
			}
			positions, err := s.app.Positions.ComputeNetPositions(cmd.Context(), at)
			if err != nil {
				return err
			}
			return printJSON(cmd, positions)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "valuation date, YYYY-MM-DD (default now)")
	cmd.Flags().BoolVar(&enhanced, "enhanced", false, "include hedge matching data")
	return cmd
}

func newRiskCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Compute and publish a risk snapshot for the current book",
		RunE: func(cmd *cobra.Command, args []string) error {
			positions, err := s.app.CurrentPositions(cmd.Context())
			if err != nil {
				return err
			}
			m, err := s.app.Risk.ComputeRiskMetrics(cmd.Context(), positions, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
	cmd.Flags().StringVar(&s.method, "method", "", "VaR method: parametric, historical, ewma or monte_carlo")
	return cmd
}

func newStressCmd(s *session) *cobra.Command {
	var name string
	var shock float64
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run stress scenarios against the current book",
		Long: `Without --shock every standard scenario is run. With --shock a single
uniform scenario is applied, e.g. --shock -0.25 for a 25% decline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			positions, err := s.app.CurrentPositions(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("shock") {
				results, err := s.app.Risk.RunStandardStressTests(cmd.Context(), positions)
				if err != nil {
					return err
				}
				return printJSON(cmd, results)
			}
			res, err := s.app.Risk.RunStressTest(cmd.Context(), positions, model.StressScenario{
				Name:         name,
				ShockType:    model.ShockPrice,
				DefaultShock: decimal.NewFromFloat(shock),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, []model.StressTestResult{res})
		},
	}
	cmd.Flags().StringVar(&name, "name", "Custom Shock", "scenario name")
	cmd.Flags().Float64Var(&shock, "shock", 0, "uniform relative price shock")
	return cmd
}

func newStatementCmd(s *session) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "statement <settlement-id>",
		Short: "Export a settlement statement as PDF or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.app.Settlements.GetSettlement(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var data []byte
			switch format {
			case "pdf":
				data, err = export.BuildStatementPDF(st)
			case "xlsx":
				data, err = export.BuildStatementXLSX(st)
			default:
				return fmt.Errorf("unknown format %q (valid: pdf, xlsx)", format)
			}
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("settlement-%s.%s", st.ID, format)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			cmd.Printf("wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or xlsx")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default settlement-<id>.<format>)")
	return cmd
}

// parseAsOf reads a YYYY-MM-DD date as the end of that day.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of: %w", err)
	}
	return day.Add(24*time.Hour - time.Nanosecond), nil
}
