/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the insurance policy registry server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, then flags)
  2. Initialize SQLite store
  3. Connect the ledger (remote bridge or in-process)
  4. Connect the event publisher (RabbitMQ or no-op)
  5. Build registry and reservation workflow
  6. Reschedule expiry of orders left pending by a previous run
  7. Start the pending sweeper and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides INSURANCE_PORT)
  -db      SQLite database path (overrides INSURANCE_DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go. Notable:
    INSURANCE_RESERVATION_FEE  enables reservations
    INSURANCE_LEDGER_URL       remote ledger bridge; empty runs one in-process
    INSURANCE_LEDGER_BRIDGE    expose the in-process ledger at /ledger (dev only)
    INSURANCE_AMQP_URL         publish booking events to RabbitMQ
    INSURANCE_JWT_SECRET       require bearer tokens for identity

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper and expiry timers
  4. Close publisher and database connection

EXAMPLES:
  # Run with file database and a 1-token fee
  INSURANCE_RESERVATION_FEE=100000000 ./server -db="./data/insurance.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - insurance/reservation.go: Reservation workflow
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/insurance-engine/api"
	"github.com/warp/insurance-engine/config"
	"github.com/warp/insurance-engine/events"
	"github.com/warp/insurance-engine/insurance"
	"github.com/warp/insurance-engine/ledger"
	"github.com/warp/insurance-engine/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Initialize store
	if *dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Ledger
	var (
		client       ledger.Client
		ledgerBridge http.Handler
	)
	if cfg.InMemoryLedger() {
		mem := ledger.NewMemory(cfg.ServicePrincipal, cfg.LedgerFee)
		client = mem
		logger.Warn("using in-process ledger, balances are lost on restart and reservations kept in the database cannot be refunded",
			"transfer_fee", cfg.LedgerFee, "db", *dbPath)
		if cfg.MountLedgerBridge() {
			ledgerBridge = ledger.NewHandler(mem)
			logger.Warn("ledger bridge mounted at /ledger without access control, anyone can mint and move funds")
		}
	} else {
		client = ledger.NewHTTPClient(cfg.LedgerURL)
		logger.Info("using remote ledger", "url", cfg.LedgerURL)
	}

	// Events
	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("connect event publisher: %w", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
		logger.Info("publishing booking events", "exchange", cfg.AMQPExchange)
	}

	// Domain services
	timers := insurance.NewTimerScheduler()
	defer timers.Stop()

	opts := []insurance.Option{
		insurance.WithLogger(logger),
		insurance.WithScheduler(timers),
		insurance.WithPublisher(publisher),
	}
	registry := insurance.NewRegistry(store, opts...)
	reservations := insurance.NewReservations(registry, store, client, insurance.ReservationConfig{
		Fee:                 cfg.ReservationFee,
		PendingWindow:       cfg.PendingWindow,
		ReservationDuration: cfg.ReservationDuration,
		ServicePrincipal:    insurance.Principal(cfg.ServicePrincipal),
	}, opts...)

	if fee, ok := reservations.ReservationFee(); ok {
		logger.Info("reservations enabled", "fee", fee, "service_account", reservations.ServiceAddress().String())
	} else {
		logger.Warn("no reservation fee configured, reservations disabled")
	}

	resumed, err := reservations.ResumeExpiry(context.Background())
	if err != nil {
		return fmt.Errorf("resume pending expiry: %w", err)
	}
	if resumed > 0 {
		logger.Info("rescheduled pending bookings", "count", resumed)
	}

	sweeper := api.NewPendingSweeper(reservations, logger)
	sweeper.CheckInterval = cfg.SweepInterval
	sweeper.Start()
	defer sweeper.Stop()

	// Create router
	handler := api.NewHandler(registry, reservations, store, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   []byte(cfg.JWTSecret),
		Ledger:      ledgerBridge,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "api", fmt.Sprintf("http://localhost:%d/api", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
