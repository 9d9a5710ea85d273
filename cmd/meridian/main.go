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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/ap"
	"github.com/meridian-erp/meridian-erp/internal/ar"
	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/attachments"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/customers"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/vendors"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/sales/orders"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	authMW := auth.Middleware{Tokens: tokens}
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokens)
	authHandler := auth.NewHandler(logger, authService, authMW)

	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(pool)
	numbers := shared.NewDocNumberAllocator(shared.NewPgSequencer(pool))
	numbers.WithCounter(metrics.CountDocument)

	customerRepo := customers.NewRepository(pool)
	customerService := customers.NewService(customerRepo)
	customerHandler := customers.NewHandler(logger, customerService, authMW)

	vendorRepo := vendors.NewRepository(pool)
	vendorService := vendors.NewService(vendorRepo)
	vendorHandler := vendors.NewHandler(logger, vendorService, authMW)

	productRepo := products.NewRepository(pool)
	productService := products.NewService(productRepo)
	productHandler := products.NewHandler(logger, productService, authMW)

	inventoryRepo := inventory.NewRepository(database)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger)
	inventoryService.WithIdempotency(shared.NewIdempotencyStore(pool))
	inventoryHandler := inventory.NewHandler(logger, inventoryService, authMW)

	orderRepo := orders.NewRepository(database)
	orderService := orders.NewService(orderRepo, app.OrderProducts(productService),
		app.StockPoster(inventoryService), nil, numbers, auditLogger, logger)
	orderHandler := orders.NewHandler(logger, orderService, authMW)

	quotationRepo := quotations.NewRepository(database)
	quotationService := quotations.NewService(quotationRepo, app.QuotationProducts(productService),
		orderService, inventoryService, numbers, auditLogger, logger)
	quotationHandler := quotations.NewHandler(logger, quotationService, authMW)

	arRepo := ar.NewRepository(database)
	arService := ar.NewService(arRepo, app.InvoiceProducts(productService),
		app.TaxGateway(logger), numbers, auditLogger, logger)
	arHandler := ar.NewHandler(logger, arService, authMW)
	orderService.SetInvoiceCreator(arService)

	procurementRepo := procurement.NewRepository(database)
	procurementService := procurement.NewService(procurementRepo, app.ProcurementProducts(productService),
		app.StockPoster(inventoryService), numbers, auditLogger, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService, authMW)

	apRepo := ap.NewRepository(database)
	apService := ap.NewService(apRepo, procurementService, numbers, auditLogger, logger)
	apHandler := ap.NewHandler(logger, apService, authMW)

	ledgerRepo := ledger.NewRepository(database)
	ledgerService := ledger.NewService(ledgerRepo, numbers, auditLogger, logger)
	reportCache := cache.NewReportCache(redisClient, 5*time.Minute)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, authMW, reportCache)
	journalPoster := app.JournalPoster(ledgerService)
	arService.SetJournalPoster(journalPoster)
	apService.SetJournalPoster(journalPoster)

	storage, err := attachments.NewDiskStorage(cfg.UploadDir)
	if err != nil {
		logger.Error("init upload dir", slog.Any("error", err))
		os.Exit(1)
	}
	attachmentRepo := attachments.NewRepository(database)
	attachmentService := attachments.NewService(attachmentRepo, storage, cfg.MaxUploadSize, auditLogger, logger)
	attachmentHandler := attachments.NewHandler(logger, attachmentService, cfg.MaxUploadSize, authMW)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		AuthMiddleware:     authMW,
		AuthHandler:        authHandler,
		CustomerHandler:    customerHandler,
		VendorHandler:      vendorHandler,
		ProductHandler:     productHandler,
		InventoryHandler:   inventoryHandler,
		QuotationHandler:   quotationHandler,
		OrderHandler:       orderHandler,
		ProcurementHandler: procurementHandler,
		ARHandler:          arHandler,
		APHandler:          apHandler,
		LedgerHandler:      ledgerHandler,
		AttachmentHandler:  attachmentHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
