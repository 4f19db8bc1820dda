/*
Package factory builds a ready-to-use Recorder from configuration.

PURPOSE:
  Both binaries (cmd/server, cmd/ledger) need the same wiring: pick the
  storage backend named in the config, apply ledger options, hook in the
  logger and the ULID generator, then load the persisted document.

BACKENDS:
  store: json   -> store/jsonfile (data_file)
  store: sqlite -> store/sqlite   (sqlite_path)

USAGE:
  cfg, _ := config.Load(path)
  ctx = logger.WithContext(ctx, log)
  rec, closeFn, err := factory.Open(ctx, cfg)
  if err != nil { ... }
  defer closeFn()
*/
package factory

import (
	"context"
	"fmt"

	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/id"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/logger"
	"github.com/warp/stock-ledger/store/jsonfile"
	"github.com/warp/stock-ledger/store/sqlite"
)

// CloseFunc releases whatever the store holds open.
type CloseFunc func() error

func noClose() error { return nil }

// OpenStore creates the store the configuration names.
func OpenStore(cfg *config.Config) (ledger.Store, CloseFunc, error) {
	switch cfg.Store {
	case "", "json":
		return jsonfile.New(cfg.DataFile), noClose, nil
	case "sqlite":
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// Open creates the store and loads the ledger from it. The Recorder logs
// through the logger carried by ctx.
func Open(ctx context.Context, cfg *config.Config) (*ledger.Recorder, CloseFunc, error) {
	log := logger.FromContext(ctx)
	st, closeFn, err := OpenStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	opts := cfg.LedgerOptions()
	opts.Logger = &log
	opts.NewID = id.New

	rec, err := ledger.Open(ctx, st, opts)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	log.Debug().Str("store", cfg.Store).Strs("locations", cfg.Locations).Msg("ledger opened")
	return rec, closeFn, nil
}
