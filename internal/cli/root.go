// Package cli provides backofficectl, the operator command line for price
// imports, position reports, risk snapshots and settlement statements.
package cli

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/oiltrading/backoffice/internal/app"
	"github.com/oiltrading/backoffice/internal/config"
	"github.com/oiltrading/backoffice/internal/logging"
)

// Version is stamped at build time.
var Version = "dev"

// session is the state shared by every subcommand for one invocation.
type session struct {
	app    *app.App
	closer io.Closer

	configPath string
	method     string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	s := &session{}

	rootCmd := &cobra.Command{
		Use:   "backofficectl",
		Short: "Oil trading back office operator tool",
		Long: `backofficectl runs back office jobs against the configured store:
importing benchmark prices, reporting net positions, computing risk
snapshots, running stress tests and exporting settlement statements.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: s.open,
		PersistentPostRun: func(cmd *cobra.Command, args []string) { s.close() },
	}
	rootCmd.PersistentFlags().StringVar(&s.configPath, "config", "", "path to the TOML config file")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newImportPricesCmd(s))
	rootCmd.AddCommand(newPositionsCmd(s))
	rootCmd.AddCommand(newRiskCmd(s))
	rootCmd.AddCommand(newStressCmd(s))
	rootCmd.AddCommand(newStatementCmd(s))
	return rootCmd
}

func (s *session) open(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if s.method != "" {
		cfg.Risk.Method = s.method
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.NewStderr(cfg.Log)
	if err != nil {
		return err
	}
	s.closer = closer
	slog.SetDefault(logger)

	a, err := app.Build(cmd.Context(), *cfg)
	if err != nil {
		return err
	}
	s.app = a
	return nil
}

func (s *session) close() {
	if s.app != nil {
		s.app.Close()
	}
	if s.closer != nil {
		s.closer.Close()
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("backofficectl %s\n", Version)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
