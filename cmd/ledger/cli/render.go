package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/ledger"
)

// usd formats an amount as US dollars, e.g. "$1,234.56" or "-$5.25".
func usd(d decimal.Decimal) string {
	cents := d.Shift(2).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

func qty(grams decimal.Decimal, unit ledger.Unit) string {
	return fmt.Sprintf("%s %s", ledger.ToDisplay(grams, unit).StringFixed(2), unit)
}

// statusMarkdown renders the dashboard as a markdown document.
func statusMarkdown(sum ledger.Summary, unit ledger.Unit) string {
	var b strings.Builder
	b.WriteString("# Ledger\n\n")

	b.WriteString("| Location | Stock |\n|---|---:|\n")
	for _, s := range sum.Stock {
		fmt.Fprintf(&b, "| %s | %s |\n", s.Location.Title(), qty(s.Grams, unit))
	}
	fmt.Fprintf(&b, "| **Total** | **%s** |\n\n", qty(sum.TotalStock, unit))

	b.WriteString("| Figure | Value |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Avg cost | %s/g |\n", sum.AvgCostPerGram.StringFixed(4))
	fmt.Fprintf(&b, "| Inventory value | %s |\n", usd(sum.InventoryValue))
	fmt.Fprintf(&b, "| Cash | %s |\n", usd(sum.Cash))
	fmt.Fprintf(&b, "| Employees | %d |\n", sum.Employees)
	fmt.Fprintf(&b, "| Revenue | %s |\n", usd(sum.Revenue))
	fmt.Fprintf(&b, "| COGS | %s |\n", usd(sum.COGS))
	fmt.Fprintf(&b, "| Gross profit | %s |\n", usd(sum.GrossProfit))
	fmt.Fprintf(&b, "| Margin | %s%% |\n", sum.MarginPct.StringFixed(1))
	return b.String()
}

// writeMarkdown renders md for a terminal, or writes it as is when plain.
func writeMarkdown(w io.Writer, md string, plain bool) error {
	if plain {
		_, err := io.WriteString(w, md)
		return err
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// writeResult prints the outcome of a command.
func writeResult(w io.Writer, res ledger.Result, unit ledger.Unit) {
	if res.Status == ledger.StatusUnchanged {
		fmt.Fprintln(w, "No changes needed.")
		return
	}
	m := res.Entry.Meta()
	fmt.Fprintf(w, "✓ %s\n", m.Description)
	if s, ok := res.Entry.(ledger.Sale); ok {
		fmt.Fprintf(w, "  revenue %s, cogs %s, profit %s\n", usd(s.Cash), usd(s.COGS), usd(s.Profit()))
	}
	fmt.Fprintf(w, "  total stock %s, avg %s/g, cash %s\n",
		qty(res.Summary.TotalStock, unit), res.Summary.AvgCostPerGram.StringFixed(4), usd(res.Summary.Cash))
}

func historyMarkdown(entries []ledger.Entry) string {
	var b strings.Builder
	b.WriteString("| Date | Kind | Description | Notes | Stock (g) | Cash After | Profit |\n")
	b.WriteString("|---|---|---|---|---:|---:|---:|\n")
	for _, e := range entries {
		r := ledger.RowOf(e)
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			r.Date.Format(ledger.DateLayout), r.Kind, cell(r.Description), cell(r.Notes),
			r.TotalStock.StringFixed(2), usd(r.CashAfter), usd(r.Profit))
	}
	return b.String()
}

func cell(s string) string { return strings.ReplaceAll(s, "|", "\\|") }
