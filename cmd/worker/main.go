package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/ar"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sales/quotations"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Default().Debug("no .env file", slog.Any("error", err))
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
	database := db.NewDB(pool)

	auditLogger := shared.NewAuditLogger(pool)
	numbers := shared.NewDocNumberAllocator(shared.NewPgSequencer(pool))

	inventoryRepo := inventory.NewRepository(database)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger)

	quotationRepo := quotations.NewRepository(database)
	quotationService := quotations.NewService(quotationRepo, nil, nil, nil,
		numbers, auditLogger, logger)

	arRepo := ar.NewRepository(database)
	arService := ar.NewService(arRepo, nil, nil, numbers, auditLogger, logger)

	overdueTask, err := jobs.NewInvoiceOverdueTask(time.Now())
	if err != nil {
		logger.Error("prepare overdue task", slog.Any("error", err))
		os.Exit(1)
	}
	expireTask, err := jobs.NewQuotationExpireTask(time.Now())
	if err != nil {
		logger.Error("prepare expire task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewInventoryReconcileTask(time.Now())
	if err != nil {
		logger.Error("prepare reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoiceOverdue, Handler: jobs.HandleInvoiceOverdue(arService, logger)},
			{Type: jobs.TaskQuotationExpire, Handler: jobs.HandleQuotationExpire(quotationService, logger)},
			{Type: jobs.TaskInventoryReconcile, Handler: jobs.HandleInventoryReconcile(inventoryService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: overdueTask},
			{Spec: "30 1 * * *", Task: expireTask},
			{Spec: "0 2 * * 0", Task: reconcileTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
