// Package cli implements the ledger command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/factory"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/logger"
)

// skipLedger marks commands that run without opening the ledger.
const skipLedger = "skip-ledger"

// RootOptions holds the persistent flags and the session they open.
type RootOptions struct {
	ConfigPath string
	DataFile   string
	Store      string
	LogLevel   string
	Plain      bool

	cfg      *config.Config
	log      zerolog.Logger
	recorder *ledger.Recorder
	closeFn  factory.CloseFunc
}

func NewRootCmd() *cobra.Command {
	ro := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "ledger",
		Short:         "Stock, cash and profit ledger for a small business",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&ro.DataFile, "data-file", "", "Ledger JSON file (overrides config)")
	cmd.PersistentFlags().StringVar(&ro.Store, "store", "", "Storage backend: json|sqlite (overrides config)")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "warn", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&ro.Plain, "plain", false, "Plain text output, no markdown rendering")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ro.open(cmd)
	}

	cmd.AddCommand(
		newStatusCmd(ro),
		newReceiveCmd(ro),
		newSellCmd(ro),
		newMoveCmd(ro),
		newAdjustCmd(ro),
		newReconcileCmd(ro),
		newHistoryCmd(ro),
		newExportCmd(ro),
		newResetCmd(ro),
		newConvertCmd(ro),
		newConfigCmd(ro),
	)

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (ro *RootOptions) open(cmd *cobra.Command) error {
	cfg, err := config.Load(ro.ConfigPath)
	if err != nil {
		return err
	}
	if ro.DataFile != "" {
		cfg.DataFile = ro.DataFile
	}
	if ro.Store != "" {
		cfg.Store = ro.Store
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ro.cfg = cfg

	lvl, err := logger.ParseLevel(ro.LogLevel)
	if err != nil {
		return err
	}
	ro.log = logger.NewWithWriter(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: ro.Plain}).Level(lvl)

	if cmd.Annotations[skipLedger] != "" {
		return nil
	}

	ctx := logger.WithContext(cmd.Context(), ro.log)
	cmd.SetContext(ctx)
	rec, closeFn, err := factory.Open(ctx, cfg)
	if err != nil {
		return err
	}
	ro.recorder, ro.closeFn = rec, closeFn

	if rerr := rec.Recovered(); rerr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: saved ledger was unreadable and has been reinitialized: %v\n", rerr)
	}
	return nil
}

// run wraps a command body so the store is closed even when it fails.
func (ro *RootOptions) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := ro.close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args)
	}
}

func (ro *RootOptions) close() error {
	if ro.closeFn == nil {
		return nil
	}
	err := ro.closeFn()
	ro.closeFn, ro.recorder = nil, nil
	return err
}

func (ro *RootOptions) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
