/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  ledger types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

NUMBERS:
  All amounts are decimals. Requests accept JSON numbers or strings
  ("12.50"); responses always use numbers.

VALIDATION:
  Request structs carry `validate` tags checked by go-playground/validator
  before the ledger sees them. The ledger re-checks everything; tags only
  give earlier, field-named 400s.
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// ReceiveRequest adds stock at a location.
type ReceiveRequest struct {
	Location string          `json:"location" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit     string          `json:"unit" validate:"omitempty,unit"`
	Cost     decimal.Decimal `json:"cost" validate:"gte=0"`
	Note     string          `json:"note" validate:"max=500"`
}

// SellRequest removes stock from a location for cash.
type SellRequest struct {
	Location string          `json:"location" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit     string          `json:"unit" validate:"omitempty,unit"`
	Cash     decimal.Decimal `json:"cash" validate:"gte=0"`
	Note     string          `json:"note" validate:"max=500"`
}

// MoveRequest transfers stock between locations.
type MoveRequest struct {
	From     string          `json:"from" validate:"required"`
	To       string          `json:"to" validate:"required,nefield=From"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit     string          `json:"unit" validate:"omitempty,unit"`
	Note     string          `json:"note" validate:"max=500"`
}

// AdjustRequest sets cash and/or team size directly. An omitted field
// keeps its current value.
type AdjustRequest struct {
	Cash      *decimal.Decimal `json:"cash"`
	Employees *int             `json:"employees" validate:"omitempty,gte=0"`
	Note      string           `json:"note" validate:"max=500"`
}

// ReconcileRequest overwrites stock with physical counts.
type ReconcileRequest struct {
	Counts map[string]decimal.Decimal `json:"counts" validate:"required,min=1"`
	Unit   string                     `json:"unit" validate:"omitempty,unit"`
	Reason string                     `json:"reason" validate:"max=500"`
}

// ResetRequest must carry confirm=true.
type ResetRequest struct {
	Confirm bool `json:"confirm" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// LocationStockDTO is the stock at one location.
type LocationStockDTO struct {
	Location string          `json:"location"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
}

// LedgerDTO is the dashboard view. Quantities are in Unit.
type LedgerDTO struct {
	Unit           string             `json:"unit"`
	Stock          []LocationStockDTO `json:"stock"`
	TotalStock     decimal.Decimal    `json:"total_stock"`
	AvgCostPerGram decimal.Decimal    `json:"avg_cost_per_g"`
	InventoryValue decimal.Decimal    `json:"inventory_value"`
	Cash           decimal.Decimal    `json:"cash"`
	Employees      int                `json:"employees"`
	Revenue        decimal.Decimal    `json:"total_revenue"`
	COGS           decimal.Decimal    `json:"total_cogs"`
	GrossProfit    decimal.Decimal    `json:"total_gross_profit"`
	MarginPct      decimal.Decimal    `json:"margin_pct"`
	Recovered      string             `json:"recovered,omitempty"`
}

// EntryDTO is one history record.
type EntryDTO struct {
	ID             string                     `json:"id"`
	Kind           string                     `json:"kind"`
	Date           string                     `json:"date"`
	Description    string                     `json:"description"`
	Notes          string                     `json:"notes"`
	Deltas         map[string]decimal.Decimal `json:"deltas_g,omitempty"`
	CashDelta      decimal.Decimal            `json:"cash_delta"`
	EmployeeDelta  int                        `json:"employee_delta"`
	TotalStock     decimal.Decimal            `json:"total_stock_g"`
	AvgCostPerGram decimal.Decimal            `json:"avg_cost_per_g"`
	InventoryValue decimal.Decimal            `json:"inventory_value"`
	CashAfter      decimal.Decimal            `json:"cash_after"`
	Revenue        decimal.Decimal            `json:"revenue"`
	COGS           decimal.Decimal            `json:"cogs"`
	Profit         decimal.Decimal            `json:"profit"`
	CostAdded      decimal.Decimal            `json:"cost_added"`
	Adjustment     bool                       `json:"adjustment,omitempty"`
}

// CommandResponse is returned by every mutating endpoint.
type CommandResponse struct {
	Status string    `json:"status"` // "applied" or "unchanged"
	Entry  *EntryDTO `json:"entry,omitempty"`
	Ledger LedgerDTO `json:"ledger"`
	// Error is set when the change applied but could not be saved.
	Error string `json:"error,omitempty"`
}

// HistoryResponse lists entries newest first.
type HistoryResponse struct {
	Entries []EntryDTO `json:"entries"`
	Total   int        `json:"total"`
}

// ConvertResponse is a unit conversion result.
type ConvertResponse struct {
	Value decimal.Decimal `json:"value"`
	Unit  string          `json:"unit"`
}

// ErrorResponse is the body of every non-2xx response except persistence
// failures, which use CommandResponse.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLedgerDTO(sum ledger.Summary, unit ledger.Unit) LedgerDTO {
	stock := make([]LocationStockDTO, len(sum.Stock))
	for i, s := range sum.Stock {
		stock[i] = LocationStockDTO{
			Location: string(s.Location),
			Name:     s.Location.Title(),
			Quantity: ledger.ToDisplay(s.Grams, unit).Round(2),
		}
	}
	return LedgerDTO{
		Unit:           string(unit),
		Stock:          stock,
		TotalStock:     ledger.ToDisplay(sum.TotalStock, unit).Round(2),
		AvgCostPerGram: sum.AvgCostPerGram.Round(4),
		InventoryValue: sum.InventoryValue,
		Cash:           sum.Cash,
		Employees:      sum.Employees,
		Revenue:        sum.Revenue,
		COGS:           sum.COGS,
		GrossProfit:    sum.GrossProfit,
		MarginPct:      sum.MarginPct,
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	r := ledger.RowOf(e)
	var deltas map[string]decimal.Decimal
	if len(r.Deltas) > 0 {
		deltas = make(map[string]decimal.Decimal, len(r.Deltas))
		for loc, d := range r.Deltas {
			deltas[string(loc)] = d
		}
	}
	return EntryDTO{
		ID:             r.ID,
		Kind:           string(r.Kind),
		Date:           r.Date.Format(ledger.DateLayout),
		Description:    r.Description,
		Notes:          r.Notes,
		Deltas:         deltas,
		CashDelta:      r.CashDelta,
		EmployeeDelta:  r.EmployeeDelta,
		TotalStock:     r.TotalStock,
		AvgCostPerGram: r.AvgCost,
		InventoryValue: r.InvValue,
		CashAfter:      r.CashAfter,
		Revenue:        r.Revenue,
		COGS:           r.COGS,
		Profit:         r.Profit,
		CostAdded:      r.CostAdded,
		Adjustment:     r.Adjustment,
	}
}
