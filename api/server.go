/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the configured origins
  5. Context logger: zerolog logger tagged with the request id, read by
     handlers through logger.FromContext

ROUTES:
  /healthz           Liveness
  /api/ledger        Live figures
  /api/history*      History (JSON, CSV)
  /api/convert       Unit conversion
  /api/{command}     receive, sell, move, adjust, reconcile, reset

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/stock-ledger/logger"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/ledger", h.GetLedger)
		r.Get("/history", h.GetHistory)
		r.Get("/history.csv", h.ExportCSV)
		r.Get("/convert", h.Convert)

		r.Post("/receive", h.Receive)
		r.Post("/sell", h.Sell)
		r.Post("/move", h.Move)
		r.Post("/adjust", h.Adjust)
		r.Post("/reconcile", h.Reconcile)
		r.Post("/reset", h.Reset)
	})

	return r
}

// requestLogger stores a logger tagged with the request id in the context.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := h.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), log)))
	})
}
