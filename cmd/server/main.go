/*
main.go - HTTP server entry point

PURPOSE:
  Loads configuration, opens the ledger and serves the JSON API.
  Handles graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load config (file, .env, LEDGER_* environment)
  3. Build the logger
  4. Open the store and load the ledger
  5. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  Config file (YAML or JSON), optional
  -port    Overrides server.port

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  ./server
  ./server -config ledger.yaml
  LEDGER_STORE=sqlite LEDGER_SQLITE_PATH=./data/ledger.db ./server
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/factory"
	"github.com/warp/stock-ledger/logger"
)

func main() {
	// Flags
	cfgPath := flag.String("config", "", "config file (YAML or JSON)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithContext(context.Background(), log)
	rec, closeStore, err := factory.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger")
	}
	defer closeStore()

	if err := rec.Recovered(); err != nil {
		log.Warn().Err(err).Msg("started from a fresh ledger after a corrupt one")
	}

	handler := api.NewHandler(rec, cfg.Unit(), log)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("store", cfg.Store).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
