package main

import (
	"context"
	"errors"
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
	"github.com/atlas-commerce/atlas-ledger/internal/events"
	"github.com/atlas-commerce/atlas-ledger/internal/ledger"
	"github.com/atlas-commerce/atlas-ledger/internal/observability"
	"github.com/atlas-commerce/atlas-ledger/internal/periods"
	"github.com/atlas-commerce/atlas-ledger/internal/platform/db"
	"github.com/atlas-commerce/atlas-ledger/internal/shared"
	"github.com/atlas-commerce/atlas-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)

	accountsService := accounts.NewService(accounts.NewRepository(pool), auditLogger)
	periodsService := periods.NewService(periods.NewRepository(pool), auditLogger, nil)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), accountsService, periodsService, auditLogger)

	assetsService := assets.NewService(assets.NewRepository(pool), ledgerService, auditLogger)

	metrics := observability.NewMetrics()
	ledgerService.WithMeter(metrics)

	dedupStore := shared.NewProcessedEventStore(pool)
	consumer := events.NewConsumer(ledgerService, events.NewMappingRepository(pool), dedupStore, logger)
	consumer.WithMeter(metrics)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listen", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	cleanupTask, err := jobs.NewDedupCleanupTask(cfg.DedupRetentionDays)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	depreciationTask, err := jobs.NewDepreciationCalculateTask(jobs.DepreciationPayload{})
	if err != nil {
		logger.Error("build depreciation task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEventIngest, Handler: jobs.NewEventIngestHandler(consumer, logger)},
			{Type: jobs.TaskDedupCleanup, Handler: jobs.NewDedupCleanupHandler(dedupStore, logger)},
			{Type: jobs.TaskDepreciationCalculate, Handler: jobs.NewDepreciationCalculateHandler(assetsService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 0 1 * *", Task: depreciationTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
