// Package main seeds a development database with sample catalog data:
// products with variants, promotion and coupon rules, merchant tiers, a
// bootstrap rate snapshot and one completed price sync.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/entity"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/coupon"
	"mercatus/internal/domain/merchant"
	"mercatus/internal/domain/promotion"
	"mercatus/internal/domain/rates"
	syncjob "mercatus/internal/domain/sync"
	"mercatus/internal/infrastructure/storage/postgres"
	"mercatus/pkg/logger"
)

type seedProduct struct {
	code     string
	name     string
	base     string
	variants []seedVariant
}

type seedVariant struct {
	name string
	base string
}

var sampleProducts = []seedProduct{
	{code: "TSHIRT", name: "Logo T-Shirt", base: "19.99", variants: []seedVariant{
		{name: "S", base: "19.99"},
		{name: "M", base: "19.99"},
		{name: "XL", base: "21.99"},
	}},
	{code: "HOODIE", name: "Zip Hoodie", base: "49.90", variants: []seedVariant{
		{name: "M", base: "49.90"},
		{name: "L", base: "52.90"},
	}},
	{code: "MUG", name: "Ceramic Mug", base: "9.50"},
	{code: "POSTER", name: "Art Print Poster", base: "14.00"},
	{code: "STICKER", name: "Sticker Pack", base: "4.25"},
	{code: "CAP", name: "Baseball Cap", base: "16.75", variants: []seedVariant{
		{name: "One Size", base: "16.75"},
	}},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("seeding mercatus database")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	// Bootstrap rates: CurrentRates installs the default snapshot when the
	// store is empty.
	rateService := rates.NewService(postgres.NewRateRepo(txManager), rates.NewCache())
	snap, err := rateService.CurrentRates(ctx)
	if err != nil {
		log.Fatalw("failed to bootstrap rates", "error", err)
	}
	log.Infow("rate snapshot ready", "version", snap.Version())

	productIDs, variantIDs, err := seedCatalog(ctx, txManager)
	if err != nil {
		log.Fatalw("failed to seed catalog", "error", err)
	}
	log.Infow("catalog seeded", "products", len(productIDs), "variants", len(variantIDs))

	if err := seedPricingRules(ctx, txManager, variantIDs); err != nil {
		log.Fatalw("failed to seed pricing rules", "error", err)
	}
	log.Info("pricing rules seeded")

	// Run one sync so every record carries derived prices.
	syncService := syncjob.NewService(
		postgres.NewSyncJobRepo(txManager),
		postgres.NewProductRepo(txManager),
		rateService,
	)
	job, err := syncService.Trigger(ctx, syncjob.ReasonManual, "seed")
	if err != nil {
		log.Fatalw("failed to trigger sync", "error", err)
	}
	if err := syncService.Run(ctx, job.ID); err != nil {
		log.Fatalw("failed to run sync", "error", err)
	}
	log.Infow("prices synchronized", "job_id", job.ID)

	log.Info("seed complete")
}

// seedCatalog bulk-inserts products and variants with the COPY protocol.
func seedCatalog(ctx context.Context, txManager *postgres.TxManager) ([]id.ID, []id.ID, error) {
	inserter := postgres.NewBatchInserter(txManager)

	var productIDs, variantIDs []id.ID
	err := txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		productCols := []string{"id", "code", "name", "deletion_mark", "version", "active", "base_price_home"}
		variantCols := []string{"id", "product_id", "name", "deletion_mark", "version", "base_price_home"}

		var productRows, variantRows [][]any
		for _, sp := range sampleProducts {
			productID := id.New()
			productIDs = append(productIDs, productID)
			productRows = append(productRows, []any{
				productID, sp.code, sp.name, false, 1, true, decimal.RequireFromString(sp.base),
			})
			for _, sv := range sp.variants {
				variantID := id.New()
				variantIDs = append(variantIDs, variantID)
				variantRows = append(variantRows, []any{
					variantID, productID, sv.name, false, 1, decimal.RequireFromString(sv.base),
				})
			}
		}

		if _, err := inserter.CopyFromSlice(ctx, "cat_products", productCols, productRows); err != nil {
			return fmt.Errorf("copy products: %w", err)
		}
		if len(variantRows) > 0 {
			if _, err := inserter.CopyFromSlice(ctx, "cat_product_variants", variantCols, variantRows); err != nil {
				return fmt.Errorf("copy variants: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return productIDs, variantIDs, nil
}

func seedPricingRules(ctx context.Context, txManager *postgres.TxManager, variantIDs []id.ID) error {
	couponRepo := postgres.NewCouponRepo(txManager)
	promotionRepo := postgres.NewPromotionRepo(txManager)
	tierRepo := postgres.NewMerchantTierRepo(txManager)

	coupons := []*coupon.Rule{
		{
			Catalog:      entity.NewCatalog("WELCOME10", "Welcome discount"),
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			Active:       true,
		},
		{
			Catalog:      entity.NewCatalog("SAVE5", "Five off"),
			DiscountType: coupon.DiscountFixed,
			Value:        decimal.NewFromInt(5),
			Active:       true,
		},
		{
			Catalog:      entity.NewCatalog("VIP20", "VIP discount"),
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(20),
			MaxDiscount:  decimal.NewFromInt(50),
			Active:       true,
		},
	}
	for _, rule := range coupons {
		if err := rule.Validate(ctx); err != nil {
			return err
		}
		if err := couponRepo.Create(ctx, rule); err != nil {
			return fmt.Errorf("seed coupon %s: %w", rule.Code, err)
		}
	}

	if len(variantIDs) > 0 {
		promos := []*promotion.Rule{
			{
				Catalog:    entity.NewCatalog("BULK15", "Bulk order discount"),
				VariantID:  variantIDs[0],
				Expression: `qty >= 3`,
				Action:     promotion.ActionPercentOff,
				Value:      decimal.NewFromInt(15),
				Priority:   10,
				Active:     true,
			},
			{
				Catalog:    entity.NewCatalog("TRADE5", "Trade account discount"),
				VariantID:  variantIDs[0],
				Expression: `account_type == "wholesale"`,
				Action:     promotion.ActionPercentOff,
				Value:      decimal.NewFromInt(5),
				Priority:   1,
				Active:     true,
			},
		}
		for _, rule := range promos {
			if err := rule.Validate(ctx); err != nil {
				return err
			}
			if err := promotionRepo.Create(ctx, rule); err != nil {
				return fmt.Errorf("seed promotion %s: %w", rule.Code, err)
			}
		}
	}

	tiers := []*merchant.Tier{
		{
			Catalog:         entity.NewCatalog("TIER-W", "Wholesale"),
			AccountType:     "wholesale",
			DiscountPercent: decimal.NewFromInt(10),
		},
		{
			Catalog:         entity.NewCatalog("TIER-P", "Partner"),
			AccountType:     "partner",
			DiscountPercent: decimal.NewFromInt(5),
		},
	}
	for _, tier := range tiers {
		if err := tierRepo.Create(ctx, tier); err != nil {
			return fmt.Errorf("seed tier %s: %w", tier.Code, err)
		}
	}
	return nil
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
