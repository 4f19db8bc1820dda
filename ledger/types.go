/*
Package ledger provides the stock ledger engine.

PURPOSE:
  Tracks inventory weight across a closed set of storage locations, the cash
  balance, the weighted-average cost basis, and cumulative revenue, cost of
  goods and gross profit. Every accepted change is captured as an immutable
  history entry and the whole document is persisted after each change.

KEY CONCEPTS IN THIS FILE (types.go):
  - Location: A named site where physical stock is held
  - Unit/Quantity: Weight as entered by the operator (grams or ounces)
  - Conversion helpers between grams and display units

DESIGN PRINCIPLES:
  1. Pure transitions: State methods never do I/O (state.go)
  2. Precision: decimal.Decimal everywhere, no float arithmetic
  3. Immutability: Entries are never modified once recorded (entry.go)
  4. Single writer: The Recorder serializes all commands (recorder.go)

USAGE:
  rec, err := ledger.Open(ctx, store, ledger.Options{Locations: locs})
  res, err := rec.Receive(ctx, "vault", ledger.Grams(100), decimal.NewFromInt(200), "")

SEE ALSO:
  - state.go: LedgerState and the five operations
  - recorder.go: Transaction Recorder (validate, apply, record, persist)
  - encode.go: Persisted JSON format
*/
package ledger

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOCATIONS
// =============================================================================

// Location identifies a storage site ("vault", "will", ...).
type Location string

// Title returns the display name used in history column headers.
func (l Location) Title() string {
	s := string(l)
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// ParseLocation normalizes user input to a Location id.
func ParseLocation(s string) Location {
	return Location(strings.ToLower(strings.TrimSpace(s)))
}

// ValidateLocation rejects ids that cannot round-trip through the persisted
// format: the "<id>_g" ledger key and the "<Title> Δ (g)" history column.
func ValidateLocation(loc Location) error {
	s := string(loc)
	switch {
	case s == "":
		return invalid("location", "must not be empty")
	case !utf8.ValidString(s):
		return invalid("location", "%q is not valid UTF-8", s)
	case ParseLocation(s) != loc:
		return invalid("location", "%q must be lower case without surrounding spaces", s)
	case ParseLocation(loc.Title()) != loc:
		return invalid("location", "%q does not survive title casing", s)
	case slices.Contains(reservedLocations, loc):
		return invalid("location", "%q collides with a reserved ledger key", s)
	}
	return nil
}

// reservedLocations are ids whose "<id>_g" key or history column is
// already taken.
var reservedLocations = []Location{
	Location(strings.TrimSuffix(keyAvgCost, stockSuffix)),
	Location(keyCash),
	Location(keyEmployees),
}

// ParseLocations normalizes a list of location ids, preserving order.
func ParseLocations(ss []string) []Location {
	out := make([]Location, 0, len(ss))
	for _, s := range ss {
		out = append(out, ParseLocation(s))
	}
	return out
}

// =============================================================================
// UNITS
// =============================================================================

type Unit string

const (
	UnitGrams  Unit = "grams"
	UnitOunces Unit = "ounces"
)

// GramsPerOunce is the fixed conversion factor used for display.
var GramsPerOunce = decimal.RequireFromString("28.3495")

// ParseUnit accepts the long and short spellings of the supported units.
// An empty string means grams.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "g", "gram", "grams":
		return UnitGrams, nil
	case "oz", "ounce", "ounces":
		return UnitOunces, nil
	default:
		return "", fmt.Errorf("unknown unit %q (use grams or ounces)", s)
	}
}

// ToDisplay converts a gram quantity to the given display unit.
func ToDisplay(grams decimal.Decimal, unit Unit) decimal.Decimal {
	if unit == UnitOunces {
		return grams.Div(GramsPerOunce)
	}
	return grams
}

// FromDisplay converts a quantity in the given unit to grams.
func FromDisplay(v decimal.Decimal, unit Unit) decimal.Decimal {
	if unit == UnitOunces {
		return v.Mul(GramsPerOunce)
	}
	return v
}

// =============================================================================
// QUANTITY - Weight as entered by the operator
// =============================================================================

// Quantity keeps the operator's original value and unit so descriptions can
// echo what was typed, while arithmetic always runs in grams.
type Quantity struct {
	Value decimal.Decimal
	Unit  Unit
}

// Grams builds a gram Quantity from an integer.
func Grams(n int64) Quantity {
	return Quantity{Value: decimal.NewFromInt(n), Unit: UnitGrams}
}

// NewQuantity builds a Quantity; an empty unit means grams.
func NewQuantity(v decimal.Decimal, unit Unit) Quantity {
	if unit == "" {
		unit = UnitGrams
	}
	return Quantity{Value: v, Unit: unit}
}

// Grams returns the quantity in grams.
func (q Quantity) Grams() decimal.Decimal { return FromDisplay(q.Value, q.Unit) }

func (q Quantity) String() string {
	unit := q.Unit
	if unit == "" {
		unit = UnitGrams
	}
	return q.Value.StringFixed(2) + " " + string(unit)
}

// =============================================================================
// ROUNDING
// =============================================================================

// Currency values are rounded at the point of computation; the stored cost
// rate keeps full precision and is only rounded for display and snapshots.
const (
	currencyPlaces = 2
	ratePlaces     = 4
	marginPlaces   = 1
)

func roundCurrency(d decimal.Decimal) decimal.Decimal { return d.Round(currencyPlaces) }
