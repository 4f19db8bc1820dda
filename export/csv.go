// Package export writes the transaction history as CSV.
package export

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/ledger"
)

// WriteCSV writes history (newest first, as stored) with one delta column
// per location. Locations that only appear in old entries get a column too.
func WriteCSV(w io.Writer, history []ledger.Entry, locations []ledger.Location) error {
	rows := make([]ledger.Row, 0, len(history))
	locs := slices.Clone(locations)
	var extra []ledger.Location
	for _, e := range history {
		r := ledger.RowOf(e)
		for loc := range r.Deltas {
			if !slices.Contains(locs, loc) && !slices.Contains(extra, loc) {
				extra = append(extra, loc)
			}
		}
		rows = append(rows, r)
	}
	slices.Sort(extra)
	locs = append(locs, extra...)

	cw := csv.NewWriter(w)
	if err := cw.Write(ledger.Columns(locs)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r, locs)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// record follows the column order of ledger.Columns.
func record(r ledger.Row, locs []ledger.Location) []string {
	out := []string{r.Date.Format(ledger.DateLayout), r.Description, r.Notes}
	for _, loc := range locs {
		d, ok := r.Deltas[loc]
		if !ok {
			out = append(out, "")
			continue
		}
		out = append(out, d.String())
	}

	employees := ""
	if r.EmployeeDelta != 0 {
		employees = strconv.Itoa(r.EmployeeDelta)
	}
	adjustment := ""
	if r.Adjustment {
		adjustment = "true"
	}

	return append(out,
		optional(r.CashDelta),
		employees,
		r.TotalStock.String(),
		r.AvgCost.String(),
		r.InvValue.StringFixed(2),
		r.CashAfter.StringFixed(2),
		r.Revenue.StringFixed(2),
		r.COGS.StringFixed(2),
		r.Profit.StringFixed(2),
		optional(r.CostAdded),
		adjustment,
		string(r.Kind),
		r.ID,
	)
}

func optional(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
