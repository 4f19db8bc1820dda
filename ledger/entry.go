/*
entry.go - Immutable history entries

PURPOSE:
  Every accepted command produces exactly one Entry. Entries are a tagged
  variant: one concrete type per command kind, all sharing an Envelope
  (id, timestamp, description, note, post-change snapshot).

KINDS:
  Receipt:        stock received at a location, optionally with a cost
  Sale:           stock sold from a location for cash
  Transfer:       stock moved between two locations
  Adjustment:     manual override of cash and/or team size
  Reconciliation: stock overwritten to match a physical count

INVARIANTS:
  - Entries never reference live State; they are safe to serialize alone
  - Envelope is stamped once by the Recorder and never modified after
  - History is newest-first
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindReceive        Kind = "receive"
	KindSale           Kind = "sale"
	KindMove           Kind = "move"
	KindAdjustment     Kind = "adjustment"
	KindReconciliation Kind = "reconciliation"
)

// =============================================================================
// ENVELOPE - Common to every entry
// =============================================================================

type Envelope struct {
	ID          string
	At          time.Time
	Description string
	Note        string
	Snapshot    Snapshot
}

// Snapshot captures derived ledger figures right after the change.
type Snapshot struct {
	TotalStock     decimal.Decimal
	AvgCostPerGram decimal.Decimal // rounded to 4 places
	InventoryValue decimal.Decimal
	CashAfter      decimal.Decimal
}

// =============================================================================
// EFFECT - Flattened deltas, used by encoders and reports
// =============================================================================

// Effect lists what an entry changed, in the shape of a history row.
type Effect struct {
	Stock      map[Location]decimal.Decimal // signed gram deltas, touched locations only
	Cash       decimal.Decimal
	Employees  int
	Revenue    decimal.Decimal
	COGS       decimal.Decimal
	CostAdded  decimal.Decimal // zero when the receipt had no cost
	Adjustment bool
}

// Profit is the gross profit attributable to this entry.
func (e Effect) Profit() decimal.Decimal {
	return roundCurrency(e.Revenue.Sub(e.COGS))
}

// Locations returns the touched locations in a stable order.
func (e Effect) Locations() []Location {
	locs := make([]Location, 0, len(e.Stock))
	for loc := range e.Stock {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	return locs
}

// =============================================================================
// ENTRY - Sealed interface over the five kinds
// =============================================================================

type Entry interface {
	Kind() Kind
	Meta() Envelope
	Effect() Effect

	stamp(Envelope) Entry
}

type Receipt struct {
	Envelope
	Location Location
	Grams    decimal.Decimal
	Cost     decimal.Decimal
}

func (r Receipt) Kind() Kind { return KindReceive }
func (r Receipt) Meta() Envelope { return r.Envelope }
func (r Receipt) stamp(e Envelope) Entry { r.Envelope = e; return r }
func (r Receipt) Effect() Effect {
	return Effect{
		Stock:     map[Location]decimal.Decimal{r.Location: r.Grams},
		CostAdded: r.Cost,
	}
}

type Sale struct {
	Envelope
	Location Location
	Grams    decimal.Decimal
	Cash     decimal.Decimal
	COGS     decimal.Decimal
}

func (s Sale) Kind() Kind { return KindSale }
func (s Sale) Meta() Envelope { return s.Envelope }
func (s Sale) stamp(e Envelope) Entry { s.Envelope = e; return s }
func (s Sale) Profit() decimal.Decimal { return roundCurrency(s.Cash.Sub(s.COGS)) }
func (s Sale) Effect() Effect {
	return Effect{
		Stock:   map[Location]decimal.Decimal{s.Location: s.Grams.Neg()},
		Cash:    s.Cash,
		Revenue: s.Cash,
		COGS:    s.COGS,
	}
}

type Transfer struct {
	Envelope
	From  Location
	To    Location
	Grams decimal.Decimal
}

func (t Transfer) Kind() Kind { return KindMove }
func (t Transfer) Meta() Envelope { return t.Envelope }
func (t Transfer) stamp(e Envelope) Entry { t.Envelope = e; return t }
func (t Transfer) Effect() Effect {
	return Effect{
		Stock: map[Location]decimal.Decimal{t.From: t.Grams.Neg(), t.To: t.Grams},
	}
}

type Adjustment struct {
	Envelope
	CashDelta     decimal.Decimal
	EmployeeDelta int
}

func (a Adjustment) Kind() Kind { return KindAdjustment }
func (a Adjustment) Meta() Envelope { return a.Envelope }
func (a Adjustment) stamp(e Envelope) Entry { a.Envelope = e; return a }
func (a Adjustment) Effect() Effect {
	return Effect{
		Stock:     map[Location]decimal.Decimal{},
		Cash:      a.CashDelta,
		Employees: a.EmployeeDelta,
	}
}

type Reconciliation struct {
	Envelope
	Deltas map[Location]decimal.Decimal
}

func (r Reconciliation) Kind() Kind { return KindReconciliation }
func (r Reconciliation) Meta() Envelope { return r.Envelope }
func (r Reconciliation) stamp(e Envelope) Entry { r.Envelope = e; return r }
func (r Reconciliation) Effect() Effect {
	stock := make(map[Location]decimal.Decimal, len(r.Deltas))
	for loc, d := range r.Deltas {
		stock[loc] = d
	}
	return Effect{Stock: stock, Adjustment: true}
}
