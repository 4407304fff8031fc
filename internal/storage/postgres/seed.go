package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spicekart/coupon-service/internal/domain/auth"
	"github.com/spicekart/coupon-service/internal/domain/coupon"
	"github.com/spicekart/coupon-service/internal/domain/product"
)

const (
	upsertProductSQL = `INSERT INTO products
		(id, name, price, category, image_thumbnail, image_mobile, image_tablet, image_desktop)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			image_thumbnail = EXCLUDED.image_thumbnail,
			image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet,
			image_desktop = EXCLUDED.image_desktop`

	// Conflict target is the expression unique index on UPPER(code).
	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_type, discount_value,
		minimum_order_amount, maximum_discount_amount, usage_limit, user_usage_limit,
		applicable_categories, applicable_products, valid_from, valid_until, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT ((UPPER(code))) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			minimum_order_amount = EXCLUDED.minimum_order_amount,
			maximum_discount_amount = EXCLUDED.maximum_discount_amount,
			usage_limit = EXCLUDED.usage_limit,
			user_usage_limit = EXCLUDED.user_usage_limit,
			applicable_categories = EXCLUDED.applicable_categories,
			applicable_products = EXCLUDED.applicable_products,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			is_active = EXCLUDED.is_active,
			deleted_at = NULL,
			updated_at = now()`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = EXCLUDED.active`
)

// Seeder upserts reference data for seeding and bulk ingest tools. It is not
// part of the serving path; the API server only reads through the
// repositories.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertProduct inserts or replaces a catalog product.
func (s *Seeder) UpsertProduct(ctx context.Context, p *product.Product) error {
	_, err := s.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price, p.Category,
		p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertCoupon inserts or replaces a coupon definition, keyed by canonical
// code. The usage counter of an existing row is preserved; a soft-deleted row
// is revived.
func (s *Seeder) UpsertCoupon(ctx context.Context, c *coupon.Coupon) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Code = coupon.CanonicalCode(c.Code)

	categories, products, err := encodeScope(c)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, upsertCouponSQL,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue,
		c.MinimumOrder, c.MaxDiscount, c.UsageLimit, c.UserUsageLimit,
		categories, products, c.ValidFrom, c.ValidUntil, c.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// UpsertAPIKey inserts or replaces an API key record.
func (s *Seeder) UpsertAPIKey(ctx context.Context, info *auth.APIKeyInfo, active bool) error {
	_, err := s.pool.Exec(ctx, upsertAPIKeySQL,
		info.ID, info.KeyHash, info.Name, info.Scopes, active,
	)
	if err != nil {
		return fmt.Errorf("upserting api key %q: %w", info.ID, err)
	}
	return nil
}
