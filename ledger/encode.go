/*
encode.go - Persisted JSON format

FORMAT:
  {
    "ledger": {
      "<location>_g": number, ...,
      "avg_cost_per_g": number, "cash": number, "employees": integer,
      "total_revenue": number, "total_cogs": number, "total_gross_profit": number
    },
    "history": [ { "Date": "2026-01-17 03:04 PM", "Description": ..., ... }, ... ]
  }

  History is newest-first. Numbers are written without quotes and at full
  decimal precision (the stored cost rate is never rounded).

COMPATIBILITY:
  Records carry "Kind" and "ID"; records without them (older files) still
  load, with the kind inferred from the record shape (see row.go).
*/
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	keyAvgCost     = "avg_cost_per_g"
	keyCash        = "cash"
	keyEmployees   = "employees"
	keyRevenue     = "total_revenue"
	keyCOGS        = "total_cogs"
	keyGrossProfit = "total_gross_profit"
	stockSuffix    = "_g"
)

// =============================================================================
// ORDERED OBJECT - keeps the human-friendly key order in the file
// =============================================================================

type field struct {
	key   string
	value any
}

type object []field

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// =============================================================================
// DOCUMENT
// =============================================================================

// EncodeDocument writes doc in the persisted format.
func EncodeDocument(w io.Writer, doc Document) error {
	history := make([]object, 0, len(doc.History))
	for _, e := range doc.History {
		history = append(history, rowObject(RowOf(e)))
	}
	data, err := json.MarshalIndent(object{
		{"ledger", stateObject(doc.State)},
		{"history", history},
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// DecodeDocument reads a document in the persisted format.
func DecodeDocument(r io.Reader) (Document, error) {
	var raw struct {
		Ledger  json.RawMessage   `json:"ledger"`
		History []json.RawMessage `json:"history"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Document{}, fmt.Errorf("decode ledger: %w", err)
	}

	doc := Document{State: NewState(nil, DefaultEmployees), EmployeesUnset: true}
	if len(raw.Ledger) > 0 && string(raw.Ledger) != "null" {
		s, hasEmployees, err := unmarshalState(raw.Ledger)
		if err != nil {
			return Document{}, err
		}
		doc.State = s
		doc.EmployeesUnset = !hasEmployees
	}
	for i, item := range raw.History {
		e, err := UnmarshalEntry(item)
		if err != nil {
			return Document{}, fmt.Errorf("history[%d]: %w", i, err)
		}
		doc.History = append(doc.History, e)
	}
	return doc, nil
}

// =============================================================================
// STATE
// =============================================================================

// MarshalState encodes the "ledger" object.
func MarshalState(s State) ([]byte, error) {
	return json.Marshal(stateObject(s))
}

func stateObject(s State) object {
	o := make(object, 0, len(s.Locations)+6)
	for _, loc := range s.Locations {
		o = append(o, field{string(loc) + stockSuffix, s.Stock[loc]})
	}
	return append(o,
		field{keyAvgCost, s.AvgCostPerGram},
		field{keyCash, s.Cash},
		field{keyEmployees, s.Employees},
		field{keyRevenue, s.Revenue},
		field{keyCOGS, s.COGS},
		field{keyGrossProfit, s.GrossProfit},
	)
}

// UnmarshalState decodes the "ledger" object. Any "<id>_g" key is a location.
// A missing "employees" key decodes as DefaultEmployees.
func UnmarshalState(data []byte) (State, error) {
	s, _, err := unmarshalState(data)
	return s, err
}

func unmarshalState(data []byte) (State, bool, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return State{}, false, fmt.Errorf("decode ledger state: %w", err)
	}
	_, hasEmployees := m[keyEmployees]

	s := NewState(nil, DefaultEmployees)
	targets := map[string]*decimal.Decimal{
		keyAvgCost:     &s.AvgCostPerGram,
		keyCash:        &s.Cash,
		keyRevenue:     &s.Revenue,
		keyCOGS:        &s.COGS,
		keyGrossProfit: &s.GrossProfit,
	}
	for key, raw := range m {
		if dst, ok := targets[key]; ok {
			d, err := decodeDecimal(key, raw)
			if err != nil {
				return State{}, false, err
			}
			*dst = d
			continue
		}
		if key == keyEmployees {
			d, err := decodeDecimal(key, raw)
			if err != nil {
				return State{}, false, err
			}
			if !d.IsInteger() || d.IsNegative() {
				return State{}, false, fmt.Errorf("%s: want a non-negative integer, got %s", key, d)
			}
			s.Employees = int(d.IntPart())
			continue
		}
		if id, ok := strings.CutSuffix(key, stockSuffix); ok && id != "" {
			g, err := decodeDecimal(key, raw)
			if err != nil {
				return State{}, false, err
			}
			if g.IsNegative() {
				return State{}, false, fmt.Errorf("%s: negative stock %s", key, g)
			}
			loc := Location(id)
			s.Locations = append(s.Locations, loc)
			s.Stock[loc] = g
		}
	}
	sort.Slice(s.Locations, func(i, j int) bool { return s.Locations[i] < s.Locations[j] })
	return s, hasEmployees, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

// MarshalEntry encodes one history record.
func MarshalEntry(e Entry) ([]byte, error) {
	return json.Marshal(rowObject(RowOf(e)))
}

func rowObject(r Row) object {
	o := object{
		{ColDate, r.Date.Format(DateLayout)},
		{ColDescription, r.Description},
		{ColNotes, r.Notes},
	}
	locs := make([]Location, 0, len(r.Deltas))
	for loc := range r.Deltas {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	for _, loc := range locs {
		o = append(o, field{DeltaColumn(loc), r.Deltas[loc]})
	}
	if !r.CashDelta.IsZero() {
		o = append(o, field{ColCashDelta, r.CashDelta})
	}
	if r.EmployeeDelta != 0 {
		o = append(o, field{ColEmployeeDelta, r.EmployeeDelta})
	}
	o = append(o,
		field{ColTotalStock, r.TotalStock},
		field{ColAvgCost, r.AvgCost},
		field{ColInvValue, r.InvValue},
		field{ColCashAfter, r.CashAfter},
		field{ColRevenue, r.Revenue},
		field{ColCOGS, r.COGS},
		field{ColProfit, r.Profit},
	)
	if !r.CostAdded.IsZero() {
		o = append(o, field{ColCostAdded, r.CostAdded})
	}
	if r.Adjustment {
		o = append(o, field{ColAdjustment, true})
	}
	return append(o, field{ColKind, r.Kind}, field{ColID, r.ID})
}

// UnmarshalEntry decodes one history record.
func UnmarshalEntry(data []byte) (Entry, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode history record: %w", err)
	}

	var r Row
	var date string
	if err := decodeString(m, ColDate, &date); err != nil {
		return nil, err
	}
	at, err := time.ParseInLocation(DateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ColDate, err)
	}
	r.Date = at

	for key, dst := range map[string]*string{
		ColDescription: &r.Description,
		ColNotes:       &r.Notes,
		ColID:          &r.ID,
	} {
		if err := decodeString(m, key, dst); err != nil {
			return nil, err
		}
	}
	var kind string
	if err := decodeString(m, ColKind, &kind); err != nil {
		return nil, err
	}
	r.Kind = Kind(kind)

	for key, dst := range map[string]*decimal.Decimal{
		ColCashDelta:  &r.CashDelta,
		ColTotalStock: &r.TotalStock,
		ColAvgCost:    &r.AvgCost,
		ColInvValue:   &r.InvValue,
		ColCashAfter:  &r.CashAfter,
		ColRevenue:    &r.Revenue,
		ColCOGS:       &r.COGS,
		ColProfit:     &r.Profit,
		ColCostAdded:  &r.CostAdded,
	} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		d, err := decodeDecimal(key, raw)
		if err != nil {
			return nil, err
		}
		*dst = d
	}

	if raw, ok := m[ColEmployeeDelta]; ok {
		d, err := decodeDecimal(ColEmployeeDelta, raw)
		if err != nil {
			return nil, err
		}
		r.EmployeeDelta = int(d.IntPart())
	}
	if raw, ok := m[ColAdjustment]; ok {
		if err := json.Unmarshal(raw, &r.Adjustment); err != nil {
			return nil, fmt.Errorf("%s: %w", ColAdjustment, err)
		}
	}

	r.Deltas = make(map[Location]decimal.Decimal)
	for key, raw := range m {
		loc, ok := locationOfColumn(key)
		if !ok {
			continue
		}
		d, err := decodeDecimal(key, raw)
		if err != nil {
			return nil, err
		}
		r.Deltas[loc] = d
	}

	return r.Entry()
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeDecimal(key string, raw json.RawMessage) (decimal.Decimal, error) {
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func decodeString(m map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
