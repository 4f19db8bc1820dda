/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the Recorder over a small JSON API. Handles HTTP request/response,
  validation, and maps ledger errors to status codes.

ENDPOINTS:
  Queries:
    GET    /api/ledger?unit=ounces   Live figures (quantities in unit)
    GET    /api/history?limit=N      Entries, newest first
    GET    /api/history.csv          CSV download
    GET    /api/convert?value=&from=&to=   Unit conversion

  Commands:
    POST   /api/receive              Add stock
    POST   /api/sell                 Sell stock
    POST   /api/move                 Transfer between locations
    POST   /api/adjust               Set cash / employees
    POST   /api/reconcile            Overwrite counts
    POST   /api/reset                Discard everything ({"confirm": true})

ERROR HANDLING:
  - 400: Validation errors, unknown locations
  - 409: Insufficient stock
  - 500: Save failed AFTER the change applied (body is a CommandResponse
         with "error" set), or any other internal error
  A no-op reconcile/adjust is 200 with status "unchanged".

SECURITY NOTE:
  No authentication. Meant for a single operator on a trusted network.
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/export"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Recorder *ledger.Recorder
	Unit     ledger.Unit // default display unit

	log      zerolog.Logger // base for per-request loggers
	validate *validator.Validate
}

// NewHandler creates a handler serving rec.
func NewHandler(rec *ledger.Recorder, unit ledger.Unit, log zerolog.Logger) *Handler {
	if unit == "" {
		unit = ledger.UnitGrams
	}
	return &Handler{
		Recorder: rec,
		Unit:     unit,
		log:      log.With().Str("component", "api").Logger(),
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, ok := f.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		return d.InexactFloat64()
	}, decimal.Decimal{})
	_ = v.RegisterValidation("unit", func(fl validator.FieldLevel) bool {
		_, err := ledger.ParseUnit(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// GetLedger returns the live figures.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.unitParam(w, r, "unit")
	if !ok {
		return
	}
	dto := toLedgerDTO(h.Recorder.Summary(), unit)
	if err := h.Recorder.Recovered(); err != nil {
		dto.Recovered = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetHistory returns entries newest first, optionally limited.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history := h.Recorder.History()
	total := len(history)

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		if n < len(history) {
			history = history[:n]
		}
	}

	entries := make([]EntryDTO, len(history))
	for i, e := range history {
		entries[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Total: total})
}

// ExportCSV streams the history as a CSV attachment.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger_history.csv"`)
	if err := export.WriteCSV(w, h.Recorder.History(), h.Recorder.Locations()); err != nil {
		lg := logger.FromContext(r.Context())
		lg.Error().Err(err).Msg("csv export failed")
	}
}

// Convert converts a quantity between grams and ounces.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	value, err := decimal.NewFromString(r.URL.Query().Get("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid value", err)
		return
	}
	from, ok := h.unitParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := h.unitParam(w, r, "to")
	if !ok {
		return
	}
	grams := ledger.FromDisplay(value, from)
	writeJSON(w, http.StatusOK, ConvertResponse{
		Value: ledger.ToDisplay(grams, to).Round(4),
		Unit:  string(to),
	})
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	var req ReceiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, ok := quantity(w, req.Quantity, req.Unit)
	if !ok {
		return
	}
	res, err := h.Recorder.Receive(r.Context(), ledger.ParseLocation(req.Location), qty, req.Cost, req.Note)
	h.respond(w, r, res, err)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, ok := quantity(w, req.Quantity, req.Unit)
	if !ok {
		return
	}
	res, err := h.Recorder.Sell(r.Context(), ledger.ParseLocation(req.Location), qty, req.Cash, req.Note)
	h.respond(w, r, res, err)
}

func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, ok := quantity(w, req.Quantity, req.Unit)
	if !ok {
		return
	}
	res, err := h.Recorder.Move(r.Context(),
		ledger.ParseLocation(req.From), ledger.ParseLocation(req.To), qty, req.Note)
	h.respond(w, r, res, err)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Recorder.AdjustFields(r.Context(), req.Cash, req.Employees, req.Note)
	h.respond(w, r, res, err)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !h.decode(w, r, &req) {
		return
	}
	unit, err := ledger.ParseUnit(req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit", err)
		return
	}
	counts := make(map[ledger.Location]ledger.Quantity, len(req.Counts))
	for loc, v := range req.Counts {
		counts[ledger.ParseLocation(loc)] = ledger.NewQuantity(v, unit)
	}
	res, err := h.Recorder.Reconcile(r.Context(), counts, req.Reason)
	h.respond(w, r, res, err)
}

// Reset discards the ledger. Requires {"confirm": true}.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Recorder.Reset(r.Context()); err != nil {
		lg := logger.FromContext(r.Context())
		lg.Error().Err(err).Msg("reset failed")
		writeError(w, http.StatusInternalServerError, "Failed to reset ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{
		Status: string(ledger.StatusApplied),
		Ledger: toLedgerDTO(h.Recorder.Summary(), h.Unit),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. On failure it writes
// the 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Field:   fe.Field(),
				Details: fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) unitParam(w http.ResponseWriter, r *http.Request, name string) (ledger.Unit, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return h.Unit, true
	}
	unit, err := ledger.ParseUnit(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit", err)
		return "", false
	}
	return unit, true
}

func quantity(w http.ResponseWriter, v decimal.Decimal, unit string) (ledger.Quantity, bool) {
	u, err := ledger.ParseUnit(unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit", err)
		return ledger.Quantity{}, false
	}
	return ledger.NewQuantity(v, u), true
}

// respond writes the outcome of a command.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, res ledger.Result, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, h.commandResponse(res))
		return
	}

	var perr *ledger.PersistenceError
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &perr):
		lg := logger.FromContext(r.Context())
		lg.Error().Err(err).Msg("change applied but not saved")
		resp := h.commandResponse(perr.Result)
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)

	case errors.Is(err, ledger.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error(), nil)

	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Field: verr.Field})

	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), nil)

	default:
		lg := logger.FromContext(r.Context())
		lg.Error().Err(err).Msg("command failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func (h *Handler) commandResponse(res ledger.Result) CommandResponse {
	resp := CommandResponse{
		Status: string(res.Status),
		Ledger: toLedgerDTO(res.Summary, h.Unit),
	}
	if res.Entry != nil {
		e := toEntryDTO(res.Entry)
		resp.Entry = &e
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
