package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saman-erp/saman-erp/internal/app"
	"github.com/saman-erp/saman-erp/internal/approval"
	"github.com/saman-erp/saman-erp/internal/idempotency"
	"github.com/saman-erp/saman-erp/internal/inventory"
	"github.com/saman-erp/saman-erp/internal/observability"
	"github.com/saman-erp/saman-erp/internal/orders"
	"github.com/saman-erp/saman-erp/internal/platform/cache"
	"github.com/saman-erp/saman-erp/internal/platform/db"
	"github.com/saman-erp/saman-erp/internal/shared"
	"github.com/saman-erp/saman-erp/internal/vendors"
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
		logger.Warn("redis unavailable, idempotency falls back to memory", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	vendorsRepo := vendors.NewRepository(pool)
	vendorsService := vendors.NewService(vendorsRepo, logger)
	vendorsHandler := vendors.NewHandler(logger, vendorsService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	approvalRepo := approval.NewRepository(pool, inventoryRepo)
	approvalService := approval.NewService(approvalRepo, vendorsService, auditLogger, metrics, logger)
	approvalHandler := approval.NewHandler(logger, approvalService)
	inventoryService.SetApprover(approvalService)

	ordersRepo := orders.NewRepository(pool)
	ordersEngine := orders.NewEngine(ordersRepo, auditLogger, metrics, logger)
	ordersHandler := orders.NewHandler(logger, ordersEngine)

	var idemStore idempotency.Store
	if redisClient != nil {
		idemStore = idempotency.NewRedisStore(redisClient, cfg.IdempotencyProcessingTTL, cfg.IdempotencyResponseTTL)
	} else {
		memStore := idempotency.NewMemoryStore(cfg.IdempotencyProcessingTTL, cfg.IdempotencyResponseTTL)
		defer memStore.Close()
		idemStore = memStore
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		OrdersHandler:    ordersHandler,
		InventoryHandler: inventoryHandler,
		ApprovalHandler:  approvalHandler,
		VendorsHandler:   vendorsHandler,
		IdempotencyStore: idemStore,
		Metrics:          metrics,
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
