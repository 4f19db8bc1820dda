package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/stock-ledger/export"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// QUERIES
// =============================================================================

func newStatusCmd(ro *RootOptions) *cobra.Command {
	var unit string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stock per location, cash and profit",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&unit, "unit", "", "Display unit: grams|ounces (default from config)")
	cmd.RunE = ro.run(func(cmd *cobra.Command, _ []string) error {
		u, err := ro.displayUnit(unit)
		if err != nil {
			return err
		}
		return writeMarkdown(cmd.OutOrStdout(), statusMarkdown(ro.recorder.Summary(), u), ro.Plain)
	})
	return cmd
}

func newHistoryCmd(ro *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 for all)")
	cmd.RunE = ro.run(func(cmd *cobra.Command, _ []string) error {
		entries := ro.recorder.History()
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transactions yet.")
			return nil
		}
		if limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}
		return writeMarkdown(cmd.OutOrStdout(), historyMarkdown(entries), ro.Plain)
	})
	return cmd
}

func newExportCmd(ro *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history as CSV",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.RunE = ro.run(func(cmd *cobra.Command, _ []string) error {
		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}
		if err := export.WriteCSV(w, ro.recorder.History(), ro.recorder.Locations()); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if output != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d entries to %s\n", len(ro.recorder.History()), output)
		}
		return nil
	})
	return cmd
}

func newConvertCmd(ro *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:         "convert VALUE",
		Short:       "Convert a quantity between grams and ounces",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipLedger: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseDecimal("value", args[0])
			if err != nil {
				return err
			}
			fu, err := ledger.ParseUnit(from)
			if err != nil {
				return err
			}
			tu, err := ledger.ParseUnit(to)
			if err != nil {
				return err
			}
			out := ledger.ToDisplay(ledger.FromDisplay(v, fu), tu)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s %s\n", v, fu, out.StringFixed(4), tu)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "grams", "Unit of VALUE")
	cmd.Flags().StringVar(&to, "to", "ounces", "Target unit")
	return cmd
}

// =============================================================================
// COMMANDS
// =============================================================================

func newReceiveCmd(ro *RootOptions) *cobra.Command {
	var unit, cost, note string
	cmd := &cobra.Command{
		Use:   "receive LOCATION QUANTITY",
		Short: "Add stock at a location",
		Example: `  ledger receive vault 100 --cost 200
  ledger receive will 3.5 --unit oz --cost 180 --note "lot 42"`,
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&unit, "unit", "", "Quantity unit: grams|ounces")
	cmd.Flags().StringVar(&cost, "cost", "0", "Total cost of the lot ($)")
	cmd.Flags().StringVar(&note, "note", "", "Free-text note")
	cmd.RunE = ro.run(func(cmd *cobra.Command, args []string) error {
		q, err := parseQuantity(args[1], unit)
		if err != nil {
			return err
		}
		c, err := parseDecimal("cost", cost)
		if err != nil {
			return err
		}
		res, err := ro.recorder.Receive(ro.ctx(cmd), ledger.ParseLocation(args[0]), q, c, note)
		return ro.report(cmd, res, err)
	})
	return cmd
}

func newSellCmd(ro *RootOptions) *cobra.Command {
	var unit, cash, note string
	cmd := &cobra.Command{
		Use:     "sell LOCATION QUANTITY",
		Short:   "Sell stock from a location",
		Example: `  ledger sell vault 40 --cash 120`,
		Args:    cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&unit, "unit", "", "Quantity unit: grams|ounces")
	cmd.Flags().StringVar(&cash, "cash", "0", "Cash received ($)")
	cmd.Flags().StringVar(&note, "note", "", "Free-text note")
	cmd.RunE = ro.run(func(cmd *cobra.Command, args []string) error {
		q, err := parseQuantity(args[1], unit)
		if err != nil {
			return err
		}
		c, err := parseDecimal("cash", cash)
		if err != nil {
			return err
		}
		res, err := ro.recorder.Sell(ro.ctx(cmd), ledger.ParseLocation(args[0]), q, c, note)
		return ro.report(cmd, res, err)
	})
	return cmd
}

func newMoveCmd(ro *RootOptions) *cobra.Command {
	var unit, note string
	cmd := &cobra.Command{
		Use:     "move FROM TO QUANTITY",
		Short:   "Move stock between locations",
		Example: `  ledger move vault will 20`,
		Args:    cobra.ExactArgs(3),
	}
	cmd.Flags().StringVar(&unit, "unit", "", "Quantity unit: grams|ounces")
	cmd.Flags().StringVar(&note, "note", "", "Free-text note")
	cmd.RunE = ro.run(func(cmd *cobra.Command, args []string) error {
		q, err := parseQuantity(args[2], unit)
		if err != nil {
			return err
		}
		res, err := ro.recorder.Move(ro.ctx(cmd),
			ledger.ParseLocation(args[0]), ledger.ParseLocation(args[1]), q, note)
		return ro.report(cmd, res, err)
	})
	return cmd
}

func newAdjustCmd(ro *RootOptions) *cobra.Command {
	var cash, note string
	var employees int
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Set the cash balance and/or employee count",
		Long:  "Sets absolute values. Flags that are not given keep their current value.",
		Example: `  ledger adjust --cash 1500
  ledger adjust --employees 3 --note "new hire"`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVar(&cash, "cash", "", "New cash balance ($)")
	cmd.Flags().IntVar(&employees, "employees", 0, "New employee count")
	cmd.Flags().StringVar(&note, "note", "", "Free-text note")
	cmd.RunE = ro.run(func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed("cash") && !cmd.Flags().Changed("employees") {
			return errors.New("give --cash and/or --employees")
		}
		var newCash *decimal.Decimal
		if cmd.Flags().Changed("cash") {
			c, err := parseDecimal("cash", cash)
			if err != nil {
				return err
			}
			newCash = &c
		}
		var newEmployees *int
		if cmd.Flags().Changed("employees") {
			newEmployees = &employees
		}
		res, err := ro.recorder.AdjustFields(ro.ctx(cmd), newCash, newEmployees, note)
		return ro.report(cmd, res, err)
	})
	return cmd
}

func newReconcileCmd(ro *RootOptions) *cobra.Command {
	var unit, reason string
	cmd := &cobra.Command{
		Use:   "reconcile LOCATION=COUNT...",
		Short: "Overwrite stock with physical counts",
		Long: `Sets each named location to the counted quantity. Locations not named
keep their recorded stock. The average cost is not changed.`,
		Example: `  ledger reconcile vault=58.5 will=20 --reason "monthly count"`,
		Args:    cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVar(&unit, "unit", "", "Count unit: grams|ounces")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the counts differ")
	cmd.RunE = ro.run(func(cmd *cobra.Command, args []string) error {
		counts := make(map[ledger.Location]ledger.Quantity, len(args))
		for _, arg := range args {
			loc, v, ok := strings.Cut(arg, "=")
			if !ok || strings.TrimSpace(loc) == "" {
				return fmt.Errorf("want LOCATION=COUNT, got %q", arg)
			}
			q, err := parseQuantity(v, unit)
			if err != nil {
				return err
			}
			counts[ledger.ParseLocation(loc)] = q
		}
		res, err := ro.recorder.Reconcile(ro.ctx(cmd), counts, reason)
		return ro.report(cmd, res, err)
	})
	return cmd
}

func newResetCmd(ro *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all stock, cash and history",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	cmd.RunE = ro.run(func(cmd *cobra.Command, _ []string) error {
		if !yes {
			return errors.New("reset discards everything; re-run with --yes to confirm")
		}
		if err := ro.recorder.Reset(ro.ctx(cmd)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Ledger reset to defaults.")
		return nil
	})
	return cmd
}

// =============================================================================
// HELPERS
// =============================================================================

// report prints a command result. A failed save still prints what was
// applied before returning the error.
func (ro *RootOptions) report(cmd *cobra.Command, res ledger.Result, err error) error {
	unit := ro.cfg.Unit()
	var perr *ledger.PersistenceError
	if errors.As(err, &perr) {
		writeResult(cmd.OutOrStdout(), perr.Result, unit)
		return err
	}
	if err != nil {
		return err
	}
	writeResult(cmd.OutOrStdout(), res, unit)
	return nil
}

func (ro *RootOptions) displayUnit(flag string) (ledger.Unit, error) {
	if flag == "" {
		return ro.cfg.Unit(), nil
	}
	return ledger.ParseUnit(flag)
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", name, s)
	}
	return d, nil
}

func parseQuantity(s, unit string) (ledger.Quantity, error) {
	v, err := parseDecimal("quantity", s)
	if err != nil {
		return ledger.Quantity{}, err
	}
	u, err := ledger.ParseUnit(unit)
	if err != nil {
		return ledger.Quantity{}, err
	}
	return ledger.NewQuantity(v, u), nil
}
