/*
state.go - LedgerState and its pure transitions

PURPOSE:
  State is the authoritative numeric ledger. Its methods are pure: each takes
  the current value, validates the command, and returns the next State plus
  the entry describing the change. Nothing here touches the clock, the
  filesystem or a logger, so the arithmetic can be tested in isolation.

INVARIANTS (hold after every successful transition):
  1. Stock[loc] >= 0 for every location
  2. TotalStock() == sum of Stock
  3. GrossProfit == Revenue - COGS
  4. Revenue and COGS never decrease
  5. AvgCostPerGram only moves on Receive
  6. Move conserves TotalStock and AvgCostPerGram

FAILURE:
  A transition that returns an error returns the receiver unchanged.
*/
package ledger

import (
	"slices"

	"github.com/shopspring/decimal"
)

// ZeroCostPolicy decides what a receipt with no cost does to the cost basis.
type ZeroCostPolicy string

const (
	// ZeroCostKeep leaves the average cost untouched.
	ZeroCostKeep ZeroCostPolicy = "keep"
	// ZeroCostDilute blends the free stock in at zero cost.
	ZeroCostDilute ZeroCostPolicy = "dilute"
)

// State is the ledger's live numeric state.
type State struct {
	Locations      []Location
	Stock          map[Location]decimal.Decimal
	AvgCostPerGram decimal.Decimal // full precision
	Cash           decimal.Decimal
	Employees      int
	Revenue        decimal.Decimal
	COGS           decimal.Decimal
	GrossProfit    decimal.Decimal
}

// NewState returns the bootstrap state: every figure zero, the given team size.
func NewState(locations []Location, employees int) State {
	s := State{
		Locations: slices.Clone(locations),
		Stock:     make(map[Location]decimal.Decimal, len(locations)),
		Employees: employees,
	}
	for _, loc := range locations {
		s.Stock[loc] = decimal.Zero
	}
	return s
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Locations = slices.Clone(s.Locations)
	c.Stock = make(map[Location]decimal.Decimal, len(s.Stock))
	for loc, g := range s.Stock {
		c.Stock[loc] = g
	}
	return c
}

// WithLocations returns a copy whose location set starts with the given
// order; locations already present but not listed are kept after them.
func (s State) WithLocations(locations []Location) State {
	c := s.Clone()
	order := slices.Clone(locations)
	for _, loc := range s.Locations {
		if !slices.Contains(order, loc) {
			order = append(order, loc)
		}
	}
	c.Locations = order
	for _, loc := range order {
		if _, ok := c.Stock[loc]; !ok {
			c.Stock[loc] = decimal.Zero
		}
	}
	return c
}

// =============================================================================
// QUERIES
// =============================================================================

// Has reports whether loc is part of the location set.
func (s State) Has(loc Location) bool { return slices.Contains(s.Locations, loc) }

// StockAt returns the grams held at loc.
func (s State) StockAt(loc Location) decimal.Decimal { return s.Stock[loc] }

// TotalStock returns the grams held across all locations.
func (s State) TotalStock() decimal.Decimal {
	total := decimal.Zero
	for _, loc := range s.Locations {
		total = total.Add(s.Stock[loc])
	}
	return total
}

// InventoryValue is total stock at the average cost, rounded to cents.
func (s State) InventoryValue() decimal.Decimal {
	return roundCurrency(s.TotalStock().Mul(s.AvgCostPerGram))
}

// MarginPct is gross profit over revenue in percent, 0 without revenue.
func (s State) MarginPct() decimal.Decimal {
	if !s.Revenue.IsPositive() {
		return decimal.Zero
	}
	return s.GrossProfit.Div(s.Revenue).Mul(decimal.NewFromInt(100)).Round(marginPlaces)
}

func (s State) snapshot() Snapshot {
	return Snapshot{
		TotalStock:     s.TotalStock(),
		AvgCostPerGram: s.AvgCostPerGram.Round(ratePlaces),
		InventoryValue: s.InventoryValue(),
		CashAfter:      roundCurrency(s.Cash),
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Receive adds stock at loc. A positive cost re-blends the average cost:
//
//	avg' = (total * avg + cost) / total'
func (s State) Receive(loc Location, grams, cost decimal.Decimal, policy ZeroCostPolicy) (State, Receipt, error) {
	if !s.Has(loc) {
		return s, Receipt{}, unknownLocation("location", loc)
	}
	if !grams.IsPositive() {
		return s, Receipt{}, invalid("quantity", "must be greater than zero")
	}
	if cost.IsNegative() {
		return s, Receipt{}, invalid("cost", "must not be negative")
	}
	cost = roundCurrency(cost)

	next := s.Clone()
	oldTotal := s.TotalStock()
	next.Stock[loc] = next.Stock[loc].Add(grams)

	if cost.IsPositive() || policy == ZeroCostDilute {
		newTotal := next.TotalStock()
		if newTotal.IsZero() {
			next.AvgCostPerGram = decimal.Zero
		} else {
			next.AvgCostPerGram = oldTotal.Mul(s.AvgCostPerGram).Add(cost).Div(newTotal)
		}
	}

	return next, Receipt{Location: loc, Grams: grams, Cost: cost}, nil
}

// Sell removes stock from loc for cash. COGS is the removed grams at the
// current average cost, rounded to cents; the average cost is unchanged.
func (s State) Sell(loc Location, grams, cash decimal.Decimal) (State, Sale, error) {
	if !s.Has(loc) {
		return s, Sale{}, unknownLocation("location", loc)
	}
	if !grams.IsPositive() {
		return s, Sale{}, invalid("quantity", "must be greater than zero")
	}
	if cash.IsNegative() {
		return s, Sale{}, invalid("cash", "must not be negative")
	}
	if err := s.requireStock(loc, grams); err != nil {
		return s, Sale{}, err
	}
	cash = roundCurrency(cash)
	cogs := roundCurrency(grams.Mul(s.AvgCostPerGram))

	next := s.Clone()
	next.Stock[loc] = next.Stock[loc].Sub(grams)
	next.Cash = next.Cash.Add(cash)
	next.Revenue = next.Revenue.Add(cash)
	next.COGS = next.COGS.Add(cogs)
	next.GrossProfit = next.GrossProfit.Add(cash.Sub(cogs))

	return next, Sale{Location: loc, Grams: grams, Cash: cash, COGS: cogs}, nil
}

// Move transfers stock between two locations.
func (s State) Move(from, to Location, grams decimal.Decimal) (State, Transfer, error) {
	if !s.Has(from) {
		return s, Transfer{}, unknownLocation("from", from)
	}
	if !s.Has(to) {
		return s, Transfer{}, unknownLocation("to", to)
	}
	if from == to {
		return s, Transfer{}, invalid("to", "source and destination must differ")
	}
	if !grams.IsPositive() {
		return s, Transfer{}, invalid("quantity", "must be greater than zero")
	}
	if err := s.requireStock(from, grams); err != nil {
		return s, Transfer{}, err
	}

	next := s.Clone()
	next.Stock[from] = next.Stock[from].Sub(grams)
	next.Stock[to] = next.Stock[to].Add(grams)

	return next, Transfer{From: from, To: to, Grams: grams}, nil
}

// Adjust overrides cash and team size. Cash may go negative.
// Returns ErrNoChanges when both already hold the requested values.
func (s State) Adjust(cash decimal.Decimal, employees int) (State, Adjustment, error) {
	if employees < 0 {
		return s, Adjustment{}, invalid("employees", "must not be negative")
	}
	cash = roundCurrency(cash)
	cashDelta := cash.Sub(s.Cash)
	employeeDelta := employees - s.Employees
	if cashDelta.IsZero() && employeeDelta == 0 {
		return s, Adjustment{}, ErrNoChanges
	}

	next := s.Clone()
	next.Cash = cash
	next.Employees = employees

	return next, Adjustment{CashDelta: cashDelta, EmployeeDelta: employeeDelta}, nil
}

// Reconcile overwrites stock with physical counts. Locations missing from
// actual are left alone. The cost basis is not touched: a recount says
// nothing about what the discrepancy cost.
// Returns ErrNoChanges when every count already matches.
func (s State) Reconcile(actual map[Location]decimal.Decimal) (State, Reconciliation, error) {
	for loc, g := range actual {
		if !s.Has(loc) {
			return s, Reconciliation{}, unknownLocation("actual", loc)
		}
		if g.IsNegative() {
			return s, Reconciliation{}, invalid("actual", "count for %s must not be negative", loc.Title())
		}
	}

	deltas := make(map[Location]decimal.Decimal)
	for _, loc := range s.Locations {
		g, ok := actual[loc]
		if !ok {
			continue
		}
		if d := g.Sub(s.Stock[loc]); !d.IsZero() {
			deltas[loc] = d
		}
	}
	if len(deltas) == 0 {
		return s, Reconciliation{}, ErrNoChanges
	}

	next := s.Clone()
	for loc := range deltas {
		next.Stock[loc] = actual[loc]
	}

	return next, Reconciliation{Deltas: deltas}, nil
}

func (s State) requireStock(loc Location, grams decimal.Decimal) error {
	available := s.Stock[loc]
	if available.LessThan(grams) {
		return &InsufficientStockError{
			Location:  loc,
			Available: available,
			Requested: grams,
			Shortfall: grams.Sub(available),
		}
	}
	return nil
}
