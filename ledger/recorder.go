/*
recorder.go - Transaction Recorder

PURPOSE:
  The Recorder is the only writer of the ledger. For each command it:
    1. Validates and applies the pure State transition (state.go)
    2. Stamps the resulting entry with id, time, description and snapshot
    3. Prepends the entry to the newest-first history
    4. Saves the whole document through the Store

FAILURE SEMANTICS:
  - Validation / insufficient stock: nothing changes, error returned
  - No-op reconcile or adjust: Result{Status: StatusUnchanged}, nil error
  - Save failure: the in-memory change stays applied and a
    *PersistenceError carrying the Result is returned, so the operator can
    be told the change may not survive a restart. Not retried.

CONCURRENCY:
  All methods take the same mutex; commands never interleave.

STARTUP:
  Open() loads the document. Missing → bootstrap defaults. Corrupt → either
  refuse (CorruptRefuse) or quarantine + reinitialize (CorruptReset).
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CorruptPolicy decides what Open does with an unreadable document.
type CorruptPolicy string

const (
	CorruptReset  CorruptPolicy = "reset"
	CorruptRefuse CorruptPolicy = "refuse"
)

// DefaultEmployees is the team size of a fresh ledger.
const DefaultEmployees = 2

// DefaultLocations is the location set used when none is configured.
var DefaultLocations = []Location{"vault", "will", "luke"}

type Options struct {
	Locations []Location
	// DefaultEmployees is the team size of a fresh ledger, or of a saved one
	// that records none. Nil means DefaultEmployees.
	DefaultEmployees *int
	ZeroCost         ZeroCostPolicy
	OnCorrupt        CorruptPolicy

	Logger *zerolog.Logger
	Now    func() time.Time
	NewID  func() string

	employees int
}

func (o Options) withDefaults() Options {
	if len(o.Locations) == 0 {
		o.Locations = DefaultLocations
	}
	o.employees = DefaultEmployees
	if o.DefaultEmployees != nil {
		o.employees = *o.DefaultEmployees
	}
	if o.ZeroCost == "" {
		o.ZeroCost = ZeroCostKeep
	}
	if o.OnCorrupt == "" {
		o.OnCorrupt = CorruptReset
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		var n int
		o.NewID = func() string { n++; return fmt.Sprintf("tx-%d", n) }
	}
	return o
}

// =============================================================================
// RESULTS
// =============================================================================

type Status string

const (
	StatusApplied   Status = "applied"
	StatusUnchanged Status = "unchanged"
)

// Result is what every command returns to the presentation layer.
type Result struct {
	Status  Status
	Entry   Entry // nil when unchanged
	Summary Summary
}

// LocationStock is one row of the per-location stock table.
type LocationStock struct {
	Location Location
	Grams    decimal.Decimal
}

// Summary is the query surface: live figures plus derived ones.
type Summary struct {
	Stock          []LocationStock
	TotalStock     decimal.Decimal
	AvgCostPerGram decimal.Decimal
	InventoryValue decimal.Decimal
	Cash           decimal.Decimal
	Employees      int
	Revenue        decimal.Decimal
	COGS           decimal.Decimal
	GrossProfit    decimal.Decimal
	MarginPct      decimal.Decimal
}

// Summary computes the presentation figures for s.
func (s State) Summary() Summary {
	stock := make([]LocationStock, 0, len(s.Locations))
	for _, loc := range s.Locations {
		stock = append(stock, LocationStock{Location: loc, Grams: s.Stock[loc]})
	}
	return Summary{
		Stock:          stock,
		TotalStock:     s.TotalStock(),
		AvgCostPerGram: s.AvgCostPerGram,
		InventoryValue: s.InventoryValue(),
		Cash:           s.Cash,
		Employees:      s.Employees,
		Revenue:        s.Revenue,
		COGS:           s.COGS,
		GrossProfit:    s.GrossProfit,
		MarginPct:      s.MarginPct(),
	}
}

// =============================================================================
// RECORDER
// =============================================================================

type Recorder struct {
	mu        sync.Mutex
	store     Store
	opts      Options
	log       zerolog.Logger
	state     State
	history   []Entry
	recovered error
}

// Open loads the persisted document and returns a ready Recorder.
func Open(ctx context.Context, store Store, opts Options) (*Recorder, error) {
	opts = opts.withDefaults()
	for _, loc := range opts.Locations {
		if err := ValidateLocation(loc); err != nil {
			return nil, err
		}
	}
	r := &Recorder{
		store: store,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "recorder").Logger(),
	}

	doc, err := store.Load(ctx)
	switch {
	case err == nil:
		r.state = doc.State.WithLocations(opts.Locations)
		if doc.EmployeesUnset {
			r.state.Employees = opts.employees
		}
		r.history = doc.History
		r.log.Info().Int("entries", len(r.history)).Msg("ledger loaded")

	case errors.Is(err, ErrNotFound):
		r.state = NewState(opts.Locations, opts.employees)
		r.log.Info().Msg("no saved ledger, starting empty")

	case errors.Is(err, ErrCorruptState):
		if opts.OnCorrupt == CorruptRefuse {
			return nil, err
		}
		if q, ok := store.(Quarantiner); ok {
			moved, qerr := q.Quarantine(ctx)
			if qerr != nil {
				r.log.Error().Err(qerr).Msg("could not quarantine corrupt ledger")
			} else {
				r.log.Warn().Str("path", moved).Msg("corrupt ledger moved aside")
			}
		}
		r.recovered = err
		r.state = NewState(opts.Locations, opts.employees)
		r.log.Warn().Err(err).Msg("saved ledger unreadable, reinitialized; prior state may be lost")

	default:
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return r, nil
}

// Recovered returns the corruption error Open recovered from, if any.
func (r *Recorder) Recovered() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recovered
}

// State returns a copy of the live state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Summary returns the live figures.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Summary()
}

// History returns the entries, newest first.
func (r *Recorder) History() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

// Locations returns the location set in display order.
func (r *Recorder) Locations() []Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.Locations)
}

// =============================================================================
// COMMANDS
// =============================================================================

func (r *Recorder) Receive(ctx context.Context, loc Location, qty Quantity, cost decimal.Decimal, note string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, entry, err := r.state.Receive(loc, qty.Grams(), cost, r.opts.ZeroCost)
	if err != nil {
		return r.reject(KindReceive, err)
	}
	desc := fmt.Sprintf("Added %s to %s", qty, loc.Title())
	return r.commit(ctx, next, entry, desc, note)
}

func (r *Recorder) Sell(ctx context.Context, loc Location, qty Quantity, cash decimal.Decimal, note string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, entry, err := r.state.Sell(loc, qty.Grams(), cash)
	if err != nil {
		return r.reject(KindSale, err)
	}
	desc := fmt.Sprintf("Sold %s from %s", qty, loc.Title())
	return r.commit(ctx, next, entry, desc, note)
}

func (r *Recorder) Move(ctx context.Context, from, to Location, qty Quantity, note string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, entry, err := r.state.Move(from, to, qty.Grams())
	if err != nil {
		return r.reject(KindMove, err)
	}
	desc := fmt.Sprintf("Moved %s %s → %s", qty, from.Title(), to.Title())
	return r.commit(ctx, next, entry, desc, note)
}

// Adjust sets cash and team size directly.
func (r *Recorder) Adjust(ctx context.Context, cash decimal.Decimal, employees int, note string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, entry, err := r.state.Adjust(cash, employees)
	if err != nil {
		return r.reject(KindAdjustment, err)
	}
	return r.commit(ctx, next, entry, "Manual adjustment", note)
}

// AdjustFields is Adjust where a nil field keeps its current value.
// At least one of cash and employees must be given.
func (r *Recorder) AdjustFields(ctx context.Context, cash *decimal.Decimal, employees *int, note string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cash == nil && employees == nil {
		return r.reject(KindAdjustment, invalid("adjust", "give cash and/or employees"))
	}
	newCash, newEmployees := r.state.Cash, r.state.Employees
	if cash != nil {
		newCash = *cash
	}
	if employees != nil {
		newEmployees = *employees
	}
	next, entry, err := r.state.Adjust(newCash, newEmployees)
	if err != nil {
		return r.reject(KindAdjustment, err)
	}
	return r.commit(ctx, next, entry, "Manual adjustment", note)
}

// Reconcile overwrites stock with physical counts; reason is kept as the note.
func (r *Recorder) Reconcile(ctx context.Context, actual map[Location]Quantity, reason string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	grams := make(map[Location]decimal.Decimal, len(actual))
	for loc, q := range actual {
		grams[loc] = q.Grams()
	}
	next, entry, err := r.state.Reconcile(grams)
	if err != nil {
		return r.reject(KindReconciliation, err)
	}
	return r.commit(ctx, next, entry, "Inventory reconciliation", reason)
}

// Reset discards the persisted document and reinitializes to defaults.
// Callers must have obtained explicit confirmation from the operator.
func (r *Recorder) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Reset(ctx); err != nil {
		r.log.Error().Err(err).Msg("reset failed")
		return fmt.Errorf("reset ledger: %w", err)
	}
	r.state = NewState(r.opts.Locations, r.opts.employees)
	r.history = nil
	r.recovered = nil
	r.log.Warn().Msg("ledger reset to defaults")
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (r *Recorder) reject(kind Kind, err error) (Result, error) {
	if errors.Is(err, ErrNoChanges) {
		r.log.Debug().Str("kind", string(kind)).Msg("no changes needed")
		return Result{Status: StatusUnchanged, Summary: r.state.Summary()}, nil
	}
	r.log.Debug().Str("kind", string(kind)).Err(err).Msg("command rejected")
	return Result{}, err
}

// commit installs next, records entry and saves the whole document.
func (r *Recorder) commit(ctx context.Context, next State, entry Entry, description, note string) (Result, error) {
	r.state = next
	rec := entry.stamp(Envelope{
		ID:          r.opts.NewID(),
		At:          r.opts.Now().Local().Truncate(time.Minute),
		Description: description,
		Note:        strings.TrimSpace(note),
		Snapshot:    next.snapshot(),
	})
	r.history = append([]Entry{rec}, r.history...)

	res := Result{Status: StatusApplied, Entry: rec, Summary: next.Summary()}
	doc := Document{State: r.state.Clone(), History: slices.Clone(r.history)}
	if err := r.store.Save(ctx, doc); err != nil {
		r.log.Error().Err(err).Str("kind", string(rec.Kind())).Str("id", rec.Meta().ID).
			Msg("change applied in memory but not saved")
		return res, &PersistenceError{Op: string(rec.Kind()), Err: err, Result: res}
	}

	r.log.Info().
		Str("kind", string(rec.Kind())).
		Str("id", rec.Meta().ID).
		Str("description", description).
		Str("total_stock_g", next.TotalStock().String()).
		Str("cash", next.Cash.StringFixed(2)).
		Msg("transaction recorded")
	return res, nil
}
