package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"trade_desk/internal/api"
	"trade_desk/internal/config"
	"trade_desk/internal/processor"
	"trade_desk/internal/repository"
	"trade_desk/internal/repository/file"
	"trade_desk/internal/repository/memory"
	"trade_desk/internal/service"
	"trade_desk/pkg/crypto"
	"trade_desk/pkg/metrics"

	"github.com/spf13/pflag"
)

const (
	appName = "tradedesk"
)

func main() {
	flags := pflag.NewFlagSet(appName, pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML config file (default $"+config.EnvConfigPath+")")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("environment", string(cfg.Environment)))

	location, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid time zone", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	store, err := setupStore(cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("Ledger store unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recentEvents := service.NewRecentEvents(cfg.Events.RecentLimit)
	eventService := service.NewEventService(
		cfg.Events.Workers,
		cfg.Events.QueueSize,
		metricsCollector,
		logger,
		service.NewLogSubscriber(logger),
		service.NewMetricsSubscriber(metricsCollector),
		recentEvents,
	)

	opts := processor.Options{
		Location:  location,
		Publisher: eventService,
		Logger:    logger,
	}
	stats := processor.NewStatsLedger(store, cfg.Ledger.ResetTTL, opts)
	reconciler := processor.NewReconciler(store, opts)
	services := api.Services{
		Tickets:    processor.NewTicketProcessor(store, stats, opts),
		Accounts:   processor.NewAccountProcessor(store, opts),
		Stats:      stats,
		Reconciler: reconciler,
		Config:     processor.NewConfigRegistry(store),
		Events:     recentEvents,
	}

	auditOnStartup(reconciler, logger)

	signer := crypto.NewSigner(cfg.Handles.Secret, logger)
	apiHandler := api.NewAPIHandler(services, metricsCollector, signer, logger)
	apiHandler.SetRequestTimeout(cfg.Server.RequestTimeout)

	metricsServer := metricsCollector.StartMetricsServer(cfg.Server.MetricsAddr)
	httpServer := startHTTPServer(cfg.Server.Addr, apiHandler, logger)
	waitForShutdown(logger, httpServer, metricsServer, eventService, metricsCollector)
	logger.Info("Application shutdown complete")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.LogLevel()
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func setupStore(cfg *config.Config, observer repository.StoreObserver, logger *slog.Logger) (repository.LedgerStore, error) {
	if cfg.Storage.Backend == "memory" {
		logger.Warn("Using in-memory ledger store; nothing survives a restart")
		return memory.NewStore().WithObserver(observer), nil
	}
	return file.NewStore(cfg.Storage.DataDir, observer, logger)
}

// auditOnStartup reports tickets whose sale never reached the ledger, the gap
// a crash between the two writes leaves behind.
func auditOnStartup(reconciler *processor.Reconciler, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := reconciler.Audit(ctx)
	if err != nil {
		logger.Error("Startup reconciliation failed", slog.String("error", err.Error()))
		return
	}
	if !report.Clean() {
		logger.Warn("Ledger needs repair; run deskctl reconcile --repair",
			slog.Int("missing_sales", len(report.MissingSales)))
	}
}

func startHTTPServer(addr string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	eventService *service.EventService,
	metricsCollector *metrics.MetricsCollector,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := eventService.Shutdown(ctx); err != nil {
		logger.Error("Event service shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsCollector.Shutdown(ctx); err != nil {
		logger.Error("Metrics collector shutdown failed", slog.String("error", err.Error()))
	}
}
