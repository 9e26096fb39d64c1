// Package main is the entry point for the Mercatus pricing API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mercatus/internal/core/id"
	"mercatus/internal/domain/cart"
	"mercatus/internal/domain/catalog/product"
	"mercatus/internal/domain/promotion"
	"mercatus/internal/domain/rates"
	syncjob "mercatus/internal/domain/sync"
	v1 "mercatus/internal/infrastructure/http/v1"
	"mercatus/internal/infrastructure/storage/postgres"
	"mercatus/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting mercatus server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Rates ---
	rateRepo := postgres.NewRateRepo(txManager)
	rateService := rates.NewService(rateRepo, rates.NewCache())

	// --- Catalog and pricing collaborators ---
	productRepo := postgres.NewProductRepo(txManager)
	promotionRepo := postgres.NewPromotionRepo(txManager)
	promotionEngine, err := promotion.NewEngine(promotionRepo, rateService)
	if err != nil {
		log.Fatalw("failed to build promotion engine", "error", err)
	}
	couponRepo := postgres.NewCouponRepo(txManager)
	tierRepo := postgres.NewMerchantTierRepo(txManager)

	productService := product.NewService(productRepo)

	cartRepo := postgres.NewCartRepo(txManager)
	cartEngine := cart.NewEngine(productRepo, rateService, promotionEngine, tierRepo, couponRepo)

	// --- Sync ---
	syncRepo := postgres.NewSyncJobRepo(txManager)
	syncService := syncjob.NewService(syncRepo, productRepo, rateService)
	syncService.SubscribeTo(rateService)

	// --- Audit trail ---
	auditTrail, err := postgres.NewAuditTrail(txManager)
	if err != nil {
		log.Fatalw("failed to build audit trail", "error", err)
	}
	rateService.OnUpdate(func(ctx context.Context, snap *rates.Snapshot) {
		if err := auditTrail.RecordChange(ctx, "rate_snapshot", snap.ID, postgres.AuditActionRateUpdate, snap); err != nil {
			log.WithContext(ctx).Warnw("failed to audit rate update", "error", err)
		}
	})
	productService.OnEdit(func(ctx context.Context, entityType string, entityID id.ID, edited any) {
		if err := auditTrail.RecordChange(ctx, entityType, entityID, postgres.AuditActionPriceEdit, edited); err != nil {
			log.WithContext(ctx).Warnw("failed to audit price edit", "error", err)
		}
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:           pool.Unwrap(),
		Logger:         log,
		JWTSecret:      []byte(getEnv("JWT_SECRET", "dev-secret-change-in-production")),
		RateService:    rateService,
		ProductStore:   productRepo,
		ProductService: productService,
		AuditTrail:     auditTrail,
		CartRepo:       cartRepo,
		CartEngine:     cartEngine,
		SyncService:    syncService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}
