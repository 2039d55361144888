package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-commerce/atlas-ledger/internal/accounts"
	"github.com/atlas-commerce/atlas-ledger/internal/app"
	"github.com/atlas-commerce/atlas-ledger/internal/assets"
	"github.com/atlas-commerce/atlas-ledger/internal/ledger"
	"github.com/atlas-commerce/atlas-ledger/internal/observability"
	"github.com/atlas-commerce/atlas-ledger/internal/periods"
	"github.com/atlas-commerce/atlas-ledger/internal/platform/cache"
	"github.com/atlas-commerce/atlas-ledger/internal/platform/db"
	"github.com/atlas-commerce/atlas-ledger/internal/recon"
	"github.com/atlas-commerce/atlas-ledger/internal/reports"
	"github.com/atlas-commerce/atlas-ledger/internal/shared"
	"github.com/atlas-commerce/atlas-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, auditLogger)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	periodsRepo := periods.NewRepository(pool)
	periodsService := periods.NewService(periodsRepo, auditLogger, reportCache)
	periodsHandler := periods.NewHandler(logger, periodsService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, accountsService, periodsService, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(reportsRepo, reportCache)
	reportsHandler := reports.NewHandler(logger, reportsService)

	assetsRepo := assets.NewRepository(pool)
	assetsService := assets.NewService(assetsRepo, ledgerService, auditLogger)
	assetsHandler := assets.NewHandler(logger, assetsService)

	reconRepo := recon.NewRepository(pool)
	reconService := recon.NewService(reconRepo, auditLogger)
	reconHandler := recon.NewHandler(logger, reconService)

	metrics := observability.NewMetrics()
	ledgerService.WithMeter(metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accountsHandler,
		LedgerHandler:   ledgerHandler,
		PeriodsHandler:  periodsHandler,
		ReportsHandler:  reportsHandler,
		AssetsHandler:   assetsHandler,
		ReconHandler:    reconHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
