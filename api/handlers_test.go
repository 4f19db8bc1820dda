/*
handlers_test.go - HTTP tests for the ledger API

Tests for:
- Command endpoints and their status codes
- Error mapping (400 / 409 / 500-with-result)
- Queries, unit conversion and CSV download
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestServer(t *testing.T, mem *store.Memory) http.Handler {
	t.Helper()
	rec, err := ledger.Open(context.Background(), mem, ledger.Options{})
	require.NoError(t, err)
	return NewRouter(NewHandler(rec, ledger.UnitGrams, zerolog.Nop()), []string{"*"})
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestReceiveAndSell(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())

	w := do(t, srv, "POST", "/api/receive", `{"location":"Vault","quantity":100,"cost":"200"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[CommandResponse](t, w)
	assert.Equal(t, "applied", resp.Status)
	require.NotNil(t, resp.Entry)
	assert.Equal(t, "receive", resp.Entry.Kind)
	assert.Equal(t, "Added 100.00 grams to Vault", resp.Entry.Description)
	assertDecimal(t, "2", resp.Ledger.AvgCostPerGram)

	w = do(t, srv, "POST", "/api/sell", `{"location":"vault","quantity":40,"cash":120,"note":"walk-in"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeBody[CommandResponse](t, w)
	assertDecimal(t, "80", resp.Entry.COGS)
	assertDecimal(t, "40", resp.Entry.Profit)
	assertDecimal(t, "40", resp.Ledger.GrossProfit)
	assertDecimal(t, "33.3", resp.Ledger.MarginPct)
}

func TestSell_InsufficientStockIsConflict(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())

	w := do(t, srv, "POST", "/api/sell", `{"location":"vault","quantity":1,"cash":5}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Contains(t, resp.Error, "Vault")
}

func TestCommands_ValidationErrors(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())

	tests := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{"zero quantity", "/api/receive", `{"location":"vault","quantity":0,"cost":1}`, "quantity"},
		{"negative cost", "/api/receive", `{"location":"vault","quantity":1,"cost":-1}`, "cost"},
		{"missing location", "/api/receive", `{"quantity":1,"cost":1}`, "location"},
		{"bad unit", "/api/sell", `{"location":"vault","quantity":1,"cash":1,"unit":"lb"}`, "unit"},
		{"same endpoints", "/api/move", `{"from":"vault","to":"vault","quantity":1}`, "to"},
		{"unknown location", "/api/receive", `{"location":"attic","quantity":1,"cost":1}`, "location"},
		{"nothing to adjust", "/api/adjust", `{"note":"typo"}`, "adjust"},
		{"negative employees", "/api/adjust", `{"cash":10,"employees":-1}`, "employees"},
		{"empty counts", "/api/reconcile", `{"counts":{}}`, "counts"},
		{"negative count", "/api/reconcile", `{"counts":{"vault":-2}}`, "actual"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, "POST", tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			resp := decodeBody[ErrorResponse](t, w)
			assert.Equal(t, tt.field, resp.Field)
		})
	}
}

func TestCommands_MalformedBody(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())

	w := do(t, srv, "POST", "/api/receive", `{"location":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/receive", `{"location":"vault","quantity":1,"cost":1,"extra":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMove_InOunces(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	do(t, srv, "POST", "/api/receive", `{"location":"vault","quantity":100,"cost":200}`)

	w := do(t, srv, "POST", "/api/move", `{"from":"vault","to":"luke","quantity":1,"unit":"oz"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[CommandResponse](t, w)
	assert.Equal(t, "Moved 1.00 ounces Vault → Luke", resp.Entry.Description)
	assertDecimal(t, "28.3495", resp.Entry.Deltas["luke"])
}

func TestAdjustAndReconcile_Unchanged(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())

	w := do(t, srv, "POST", "/api/adjust", `{"cash":0,"employees":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unchanged", decodeBody[CommandResponse](t, w).Status)

	w = do(t, srv, "POST", "/api/reconcile", `{"counts":{"vault":0}}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[CommandResponse](t, w)
	assert.Equal(t, "unchanged", resp.Status)
	assert.Nil(t, resp.Entry)
}

func TestAdjust_OmittedFieldKeepsCurrentValue(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	w := do(t, srv, "POST", "/api/adjust", `{"cash":1500,"employees":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// WHEN: only the team size is sent
	w = do(t, srv, "POST", "/api/adjust", `{"employees":3}`)

	// THEN: cash is left alone
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[CommandResponse](t, w)
	assert.Equal(t, "applied", resp.Status)
	assertDecimal(t, "0", resp.Entry.CashDelta)
	assert.Equal(t, 1, resp.Entry.EmployeeDelta)
	assertDecimal(t, "1500", resp.Entry.CashAfter)
	assertDecimal(t, "1500", resp.Ledger.Cash)
	assert.Equal(t, 3, resp.Ledger.Employees)

	// AND: cash alone keeps the team size
	w = do(t, srv, "POST", "/api/adjust", `{"cash":"1200.50"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeBody[CommandResponse](t, w)
	assertDecimal(t, "1200.5", resp.Ledger.Cash)
	assert.Equal(t, 3, resp.Ledger.Employees)
}

func TestReconcile_Applied(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	do(t, srv, "POST", "/api/receive", `{"location":"will","quantity":50,"cost":100}`)

	w := do(t, srv, "POST", "/api/reconcile", `{"counts":{"Will":48.5},"reason":"scale drift"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[CommandResponse](t, w)
	assert.Equal(t, "reconciliation", resp.Entry.Kind)
	assert.Equal(t, "scale drift", resp.Entry.Notes)
	assert.True(t, resp.Entry.Adjustment)
	assertDecimal(t, "-1.5", resp.Entry.Deltas["will"])
}

func TestCommand_PersistenceFailureReturnsResult(t *testing.T) {
	// GIVEN: a store that cannot save
	mem := store.NewMemory()
	mem.FailSaves = errors.New("read-only file system")
	srv := newTestServer(t, mem)

	// WHEN
	w := do(t, srv, "POST", "/api/receive", `{"location":"vault","quantity":10,"cost":20}`)

	// THEN: 500, but the body carries the applied change
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeBody[CommandResponse](t, w)
	assert.Equal(t, "applied", resp.Status)
	assert.Contains(t, resp.Error, "read-only file system")
	assertDecimal(t, "10", resp.Ledger.TotalStock)
}

func TestCommand_FailuresAreLoggedWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	mem := store.NewMemory()
	mem.FailSaves = errors.New("disk full")
	rec, err := ledger.Open(context.Background(), mem, ledger.Options{})
	require.NoError(t, err)
	srv := NewRouter(NewHandler(rec, ledger.UnitGrams, zerolog.New(&buf)), []string{"*"})

	req := httptest.NewRequest("POST", "/api/receive", strings.NewReader(`{"location":"vault","quantity":1,"cost":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-42"`)
	assert.Contains(t, out, `"component":"api"`)
	assert.Contains(t, out, "disk full")
}

func TestReset_RequiresConfirmation(t *testing.T) {
	mem := store.NewMemory()
	srv := newTestServer(t, mem)
	do(t, srv, "POST", "/api/receive", `{"location":"vault","quantity":10,"cost":20}`)

	w := do(t, srv, "POST", "/api/reset", `{"confirm":false}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, saved := mem.Document()
	assert.True(t, saved)

	w = do(t, srv, "POST", "/api/reset", `{"confirm":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assertDecimal(t, "0", decodeBody[CommandResponse](t, w).Ledger.TotalStock)
	_, saved = mem.Document()
	assert.False(t, saved)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestGetLedger_Units(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	do(t, srv, "POST", "/api/receive", `{"location":"vault","quantity":2,"unit":"ounces","cost":100}`)

	w := do(t, srv, "GET", "/api/ledger", "")
	require.Equal(t, http.StatusOK, w.Code)
	grams := decodeBody[LedgerDTO](t, w)
	assert.Equal(t, "grams", grams.Unit)
	assertDecimal(t, "56.7", grams.TotalStock)
	require.Len(t, grams.Stock, 3)
	assert.Equal(t, "Vault", grams.Stock[0].Name)

	w = do(t, srv, "GET", "/api/ledger?unit=oz", "")
	ounces := decodeBody[LedgerDTO](t, w)
	assert.Equal(t, "ounces", ounces.Unit)
	assertDecimal(t, "2", ounces.TotalStock)

	w = do(t, srv, "GET", "/api/ledger?unit=stone", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHistory(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	do(t, srv, "POST", "/api/receive", `{"location":"vault","quantity":10,"cost":20}`)
	do(t, srv, "POST", "/api/sell", `{"location":"vault","quantity":5,"cash":20}`)

	w := do(t, srv, "GET", "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[HistoryResponse](t, w)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "sale", resp.Entries[0].Kind)

	w = do(t, srv, "GET", "/api/history?limit=1", "")
	resp = decodeBody[HistoryResponse](t, w)
	assert.Len(t, resp.Entries, 1)
	assert.Equal(t, 2, resp.Total)

	w = do(t, srv, "GET", "/api/history?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	do(t, srv, "POST", "/api/receive", `{"location":"vault","quantity":10,"cost":20}`)

	w := do(t, srv, "GET", "/api/history.csv", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ledger_history.csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Date,Description,Notes"))
}

func TestConvert(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())

	w := do(t, srv, "GET", "/api/convert?value=28.3495&from=g&to=oz", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[ConvertResponse](t, w)
	assertDecimal(t, "1", resp.Value)
	assert.Equal(t, "ounces", resp.Unit)

	w = do(t, srv, "GET", "/api/convert?value=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	w := do(t, srv, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte(`"ok"`)))
}
