package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/config"
	"github.com/stockbook/stockbook/internal/repository"
	"github.com/stockbook/stockbook/internal/repository/memory"
	"github.com/stockbook/stockbook/internal/repository/mongodb"
	"github.com/stockbook/stockbook/internal/repository/sheets"
	"github.com/stockbook/stockbook/internal/scheduler"
	"github.com/stockbook/stockbook/internal/server/handlers"
	"github.com/stockbook/stockbook/internal/server/router"
	"github.com/stockbook/stockbook/internal/service/analytics"
	"github.com/stockbook/stockbook/internal/service/purchases"
	"github.com/stockbook/stockbook/internal/service/reporting"
	"github.com/stockbook/stockbook/internal/service/sales"
	"github.com/stockbook/stockbook/internal/service/sequence"
	"github.com/stockbook/stockbook/internal/service/stock"
	"github.com/stockbook/stockbook/pkg/clients/webhook"
	"github.com/stockbook/stockbook/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, err := openStore(context.Background(), cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close store", zap.Error(err))
		}
	}()

	guard, err := stock.ParseGuardMode(cfg.Ledger.StockGuard)
	if err != nil {
		baseLogger.Fatal("invalid stock guard", zap.Error(err))
	}
	ledger := stock.NewLedger(store, guard, baseLogger.Named("svc.stock"))
	ids := sequence.NewAllocator(store, baseLogger.Named("svc.sequence"))
	purchaseMgr := purchases.NewManager(store, ledger, ids, baseLogger.Named("svc.purchases"))
	saleMgr := sales.NewManager(store, ledger, ids, baseLogger.Named("svc.sales"))
	analyticsSvc := analytics.NewService(store, baseLogger.Named("svc.analytics"))

	var exporter reporting.SummaryExporter
	if cfg.Sheets.Enabled() {
		writer, err := sheets.NewGoogleSheetWriter(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets writer", zap.Error(err))
		}
		exporter = sheets.NewExporter(writer, baseLogger.Named("repo.sheets"))
		baseLogger.Info("google sheets export enabled")
	} else {
		baseLogger.Warn("google sheet id missing, summary export disabled")
	}
	reportingSvc := reporting.NewService(store, exporter, baseLogger.Named("svc.reporting"))

	var notifier webhook.Notifier
	if cfg.Alerts.WebhookURL != "" {
		notifier = webhook.NewClient(cfg.Alerts)
		baseLogger.Info("drift alerts enabled")
	}

	engine := router.New(router.Handlers{
		Purchases: handlers.NewPurchaseHandler(purchaseMgr, baseLogger.Named("handlers.purchases")),
		Sales:     handlers.NewSaleHandler(saleMgr, baseLogger.Named("handlers.sales")),
		Insights:  handlers.NewInsightsHandler(analyticsSvc, reportingSvc, cfg.Ledger.DashboardWindow, baseLogger.Named("handlers.insights")),
	}, baseLogger.Named("router"))

	var summaryJob scheduler.SummaryExporter
	if exporter != nil {
		summaryJob = reportingSvc
	}
	sched, err := scheduler.NewScheduler(cfg.Scheduler, ledger, summaryJob, notifier, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("stock_guard", string(guard)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, base *zap.Logger) (repository.Store, error) {
	if cfg.Store.Driver == config.DriverMemory {
		base.Warn("using in-memory store, data is lost on restart")
		return memory.New(base.Named("repo.memory")), nil
	}
	return mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName,
		mongodb.Options{UseTransactions: cfg.MongoDB.UseTransactions}, base.Named("repo.mongodb"))
}
