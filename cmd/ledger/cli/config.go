package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/stock-ledger/config"
)

func newConfigCmd(ro *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file`,
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Generate a default configuration file",
		Example:     `  ledger config init -o ledger.yaml`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipLedger: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created default configuration: %s\n", output)
			fmt.Fprintf(cmd.OutOrStdout(), "  Run with: ledger --config %s status\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "ledger.yaml", "output config file path")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate a configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipLedger: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(w, "  Store: %s\n", cfg.Store)
			fmt.Fprintf(w, "  Locations: %v\n", cfg.Locations)
			fmt.Fprintf(w, "  Zero-cost receipts: %s, on corrupt: %s\n", cfg.ZeroCostReceipts, cfg.OnCorrupt)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
