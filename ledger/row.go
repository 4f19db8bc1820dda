package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// History column names, shared by the JSON history records and CSV export.
const (
	ColDate          = "Date"
	ColDescription   = "Description"
	ColNotes         = "Notes"
	ColCashDelta     = "Cash Δ ($)"
	ColEmployeeDelta = "Employees Δ"
	ColTotalStock    = "Total Stock (g)"
	ColAvgCost       = "Avg $/g"
	ColInvValue      = "Inv Value ($)"
	ColCashAfter     = "Cash After ($)"
	ColRevenue       = "Revenue ($)"
	ColCOGS          = "COGS ($)"
	ColProfit        = "Profit ($)"
	ColCostAdded     = "Cost Added ($)"
	ColAdjustment    = "Adjustment"
	ColKind          = "Kind"
	ColID            = "ID"

	deltaSuffix = " Δ (g)"
)

// DateLayout is the timestamp format of history records.
const DateLayout = "2006-01-02 03:04 PM"

// DeltaColumn returns the per-location delta column, e.g. "Vault Δ (g)".
func DeltaColumn(loc Location) string { return loc.Title() + deltaSuffix }

func locationOfColumn(col string) (Location, bool) {
	name, ok := strings.CutSuffix(col, deltaSuffix)
	if !ok || name == "" || name == "Cash" || name == "Employees" {
		return "", false
	}
	return ParseLocation(name), true
}

// Columns lists every history column in export order.
func Columns(locations []Location) []string {
	cols := []string{ColDate, ColDescription, ColNotes}
	for _, loc := range locations {
		cols = append(cols, DeltaColumn(loc))
	}
	return append(cols,
		ColCashDelta, ColEmployeeDelta,
		ColTotalStock, ColAvgCost, ColInvValue, ColCashAfter,
		ColRevenue, ColCOGS, ColProfit, ColCostAdded,
		ColAdjustment, ColKind, ColID,
	)
}

// Row is the flat, denormalized form of an Entry.
type Row struct {
	ID            string
	Kind          Kind
	Date          time.Time
	Description   string
	Notes         string
	Deltas        map[Location]decimal.Decimal
	CashDelta     decimal.Decimal
	EmployeeDelta int
	TotalStock    decimal.Decimal
	AvgCost       decimal.Decimal
	InvValue      decimal.Decimal
	CashAfter     decimal.Decimal
	Revenue       decimal.Decimal
	COGS          decimal.Decimal
	Profit        decimal.Decimal
	CostAdded     decimal.Decimal
	Adjustment    bool
}

// RowOf flattens an entry.
func RowOf(e Entry) Row {
	m := e.Meta()
	eff := e.Effect()
	return Row{
		ID:            m.ID,
		Kind:          e.Kind(),
		Date:          m.At,
		Description:   m.Description,
		Notes:         m.Note,
		Deltas:        eff.Stock,
		CashDelta:     eff.Cash,
		EmployeeDelta: eff.Employees,
		TotalStock:    m.Snapshot.TotalStock,
		AvgCost:       m.Snapshot.AvgCostPerGram,
		InvValue:      m.Snapshot.InventoryValue,
		CashAfter:     m.Snapshot.CashAfter,
		Revenue:       eff.Revenue,
		COGS:          eff.COGS,
		Profit:        eff.Profit(),
		CostAdded:     eff.CostAdded,
		Adjustment:    eff.Adjustment,
	}
}

// Entry rebuilds the typed entry. Rows written before kinds were stored
// have their kind inferred from their shape.
func (r Row) Entry() (Entry, error) {
	env := Envelope{
		ID:          r.ID,
		At:          r.Date,
		Description: r.Description,
		Note:        r.Notes,
		Snapshot: Snapshot{
			TotalStock:     r.TotalStock,
			AvgCostPerGram: r.AvgCost,
			InventoryValue: r.InvValue,
			CashAfter:      r.CashAfter,
		},
	}

	switch kind := r.inferKind(); kind {
	case KindReceive:
		loc, g, err := r.single()
		if err != nil {
			return nil, err
		}
		return Receipt{Envelope: env, Location: loc, Grams: g, Cost: r.CostAdded}, nil

	case KindSale:
		loc, g, err := r.single()
		if err != nil {
			return nil, err
		}
		return Sale{Envelope: env, Location: loc, Grams: g.Neg(), Cash: r.Revenue, COGS: r.COGS}, nil

	case KindMove:
		if len(r.Deltas) != 2 {
			return nil, fmt.Errorf("move %q: want 2 location deltas, got %d", r.Description, len(r.Deltas))
		}
		var t Transfer
		t.Envelope = env
		for loc, d := range r.Deltas {
			if d.IsNegative() {
				t.From = loc
			} else {
				t.To, t.Grams = loc, d
			}
		}
		if t.From == "" || t.To == "" {
			return nil, fmt.Errorf("move %q: want one outgoing and one incoming delta", r.Description)
		}
		return t, nil

	case KindAdjustment:
		return Adjustment{Envelope: env, CashDelta: r.CashDelta, EmployeeDelta: r.EmployeeDelta}, nil

	case KindReconciliation:
		deltas := make(map[Location]decimal.Decimal, len(r.Deltas))
		for loc, d := range r.Deltas {
			deltas[loc] = d
		}
		return Reconciliation{Envelope: env, Deltas: deltas}, nil

	default:
		return nil, fmt.Errorf("unknown entry kind %q", kind)
	}
}

func (r Row) inferKind() Kind {
	if r.Kind != "" {
		return r.Kind
	}
	switch {
	case r.Adjustment:
		return KindReconciliation
	case !r.Revenue.IsZero() || !r.COGS.IsZero() || strings.HasPrefix(r.Description, "Sold"):
		return KindSale
	case len(r.Deltas) == 0:
		return KindAdjustment
	case len(r.Deltas) == 2:
		return KindMove
	}
	for _, d := range r.Deltas {
		if d.IsPositive() {
			return KindReceive
		}
	}
	return KindSale
}

func (r Row) single() (Location, decimal.Decimal, error) {
	if len(r.Deltas) != 1 {
		return "", decimal.Zero, fmt.Errorf("%q: want 1 location delta, got %d", r.Description, len(r.Deltas))
	}
	for loc, d := range r.Deltas {
		return loc, d, nil
	}
	panic("unreachable")
}
