package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/tradecore/internal/config"
	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/engine"
	"github.com/efreitasn/tradecore/internal/event"
	"github.com/efreitasn/tradecore/internal/handler"
	"github.com/efreitasn/tradecore/internal/service"
	"github.com/efreitasn/tradecore/internal/settlement"
	"github.com/efreitasn/tradecore/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	envFile := flag.String("env-file", "", "Load environment variables from this file (default ./.env if present)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Instantiate stores.
	accountStore := store.NewAccountStore()
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()
	webhookStore := store.NewWebhookStore()
	instruments := domain.NewInstrumentRegistry()

	// Optional durable journal. Journals stay nil interfaces without a database.
	var (
		db           *store.SQLiteStore
		tradeJournal settlement.Journal
		refJournal   service.Journal
	)
	if cfg.DatabasePath != "" {
		var err error
		if db, err = store.NewSQLiteStore(ctx, cfg.DatabasePath); err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		tradeJournal, refJournal = db, db
		logger.Info("ledger journal enabled", slog.String("path", cfg.DatabasePath))
	}

	// Event bus.
	bus := event.NewBus(cfg.EventBuffer, logger)

	// Engine.
	fees := cfg.Fees()
	settler := settlement.NewSettler(accountStore, tradeJournal)
	matcher := engine.NewMatcher(engine.NewBookManager(), orderStore, tradeStore, instruments, settler, fees, bus, logger)

	// Services.
	accountSvc := service.NewAccountService(accountStore, instruments, refJournal)
	orderSvc := service.NewOrderService(matcher, accountStore, orderStore, fees)
	instrumentSvc := service.NewInstrumentService(instruments, tradeStore, matcher, refJournal, cfg.VWAPWindow)
	webhookSvc := service.NewWebhookService(webhookStore, accountStore, cfg.WebhookTimeout, logger)

	if db != nil {
		if err := restore(ctx, db, instruments, accountSvc, tradeStore, logger); err != nil {
			return err
		}
	}
	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := applySeed(ctx, seed, instrumentSvc, accountSvc, logger); err != nil {
			return err
		}
	}

	logger.Info("ledger ready",
		slog.Int("accounts", len(accountStore.IDs())),
		slog.Int("instruments", len(instruments.List())),
	)

	// Event consumers.
	hub := handler.NewHub(logger)
	bus.Subscribe(webhookSvc.Handle)
	bus.Subscribe(hub.Handle)
	bus.Start(ctx)

	// Router.
	router := handler.NewRouter(handler.Services{
		Accounts:    accountSvc,
		Orders:      orderSvc,
		Instruments: instrumentSvc,
		Webhooks:    webhookSvc,
	}, hub, cfg.CORSOrigins, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("fee_model", cfg.FeeModel),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	}

	// Graceful shutdown: stop HTTP intake, drain the bus, then let in-flight
	// webhook deliveries finish before the database closes.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	hub.Close()
	if err := bus.Stop(); err != nil {
		logger.Error("event bus stop error", slog.String("error", err.Error()))
	}
	if n := bus.Dropped(); n > 0 {
		logger.Warn("events dropped during run", slog.Uint64("dropped", n))
	}
	if err := webhookSvc.Wait(shutdownCtx); err != nil {
		logger.Warn("webhook deliveries still in flight", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}
