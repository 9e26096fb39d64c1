// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercatus/internal/domain/cart"
	"mercatus/internal/domain/catalog/product"
	"mercatus/internal/domain/rates"
	syncjob "mercatus/internal/domain/sync"
	"mercatus/internal/infrastructure/http/v1/handlers"
	"mercatus/internal/infrastructure/http/v1/middleware"
	"mercatus/internal/infrastructure/storage/postgres"
	"mercatus/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Pool           *pgxpool.Pool
	Logger         *logger.Logger
	JWTSecret      []byte
	RateService    *rates.Service
	ProductStore   product.Store
	ProductService *product.Service
	AuditTrail     *postgres.AuditTrail
	CartRepo       cart.Repository
	CartEngine     *cart.Engine
	SyncService    *syncjob.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Actor(cfg.JWTSecret))

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Liveness)
		health.GET("/ready", healthHandler.Readiness)
		health.GET("/info", healthHandler.Info)
	}
	router.GET("/health", healthHandler.Readiness)

	ratesHandler := handlers.NewRatesHandler(cfg.RateService)
	productsHandler := handlers.NewProductsHandler(cfg.ProductStore, cfg.ProductService, cfg.AuditTrail)
	cartHandler := handlers.NewCartHandler(cfg.CartRepo, cfg.CartEngine)
	syncHandler := handlers.NewSyncHandler(cfg.SyncService)

	api := router.Group("/api/v1")
	{
		api.GET("/rates", ratesHandler.Current)
		api.GET("/rates/history", ratesHandler.History)
		api.POST("/rates", middleware.RequireActor(), ratesHandler.Update)

		api.POST("/convert", ratesHandler.Convert)

		products := api.Group("/products")
		{
			products.GET("/:id", productsHandler.Get)
			products.PUT("/:id/prices", middleware.RequireActor(), productsHandler.EditPrices)
			products.PUT("/:id/variants/:variantId/prices", middleware.RequireActor(), productsHandler.EditVariantPrices)
			products.GET("/:id/audit", middleware.RequireActor(), productsHandler.Audit)
		}

		carts := api.Group("/carts")
		{
			carts.POST("", cartHandler.Create)
			carts.GET("/:id", cartHandler.Get)
			carts.PUT("/:id/items", cartHandler.UpsertItem)
			carts.PUT("/:id/coupons", cartHandler.SetCoupons)
			carts.POST("/:id/preview", cartHandler.Preview)
		}

		jobs := api.Group("/sync/jobs")
		{
			jobs.GET("", syncHandler.List)
			jobs.GET("/:id", syncHandler.Get)
			jobs.POST("", middleware.RequireActor(), syncHandler.Trigger)
			jobs.POST("/:id/retry/:productId", middleware.RequireActor(), syncHandler.RetryProduct)
		}
	}

	return router
}
