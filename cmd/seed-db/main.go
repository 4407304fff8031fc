// Command seed-db loads the product catalog, a starter set of coupons, and a
// default API key into the database. Safe to re-run: everything is upserted.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/spicekart/coupon-service/internal/domain/auth"
	"github.com/spicekart/coupon-service/internal/domain/coupon"
	"github.com/spicekart/coupon-service/internal/domain/product"
	"github.com/spicekart/coupon-service/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	seeder := postgres.NewSeeder(pool)

	if err := seedProducts(ctx, seeder, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, seeder); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, seeder, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, seeder *postgres.Seeder, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		dp := &product.Product{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Category: p.Category,
			Image: product.Image{
				Thumbnail: p.Image.Thumbnail,
				Mobile:    p.Image.Mobile,
				Tablet:    p.Image.Tablet,
				Desktop:   p.Image.Desktop,
			},
		}
		if err := seeder.UpsertProduct(ctx, dp); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, seeder *postgres.Seeder) error {
	slog.Info("seeding starter coupons")

	until := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	coupons := []*coupon.Coupon{
		{
			Code:           "WELCOME10",
			DiscountType:   coupon.DiscountPercentage,
			DiscountValue:  decimal.NewFromInt(10),
			UserUsageLimit: 1,
			Active:         true,
		},
		{
			Code:          "SPICELOVER",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(20),
			MaxDiscount:   decimal.NewFromInt(15),
			Categories:    []string{"Spices"},
			Active:        true,
		},
		{
			Code:          "FIVEOFF",
			DiscountType:  coupon.DiscountFixed,
			DiscountValue: decimal.NewFromInt(5),
			MinimumOrder:  decimal.NewFromInt(25),
			Active:        true,
		},
		{
			Code:         "SHIPFREE",
			DiscountType: coupon.DiscountFreeShipping,
			MinimumOrder: decimal.NewFromInt(15),
			ValidUntil:   &until,
			Active:       true,
		},
	}

	for _, c := range coupons {
		if err := seeder.UpsertCoupon(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("type", string(c.DiscountType)))
	}

	return nil
}

func seedAPIKey(ctx context.Context, seeder *postgres.Seeder, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	info := &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: keyHash,
		Name:    "Default test key",
		Scopes:  []string{auth.ScopePlaceOrders, auth.ScopeManageCoupons},
	}
	if err := seeder.UpsertAPIKey(ctx, info, true); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
