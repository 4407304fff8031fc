package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spicekart/coupon-service/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, discount_value, minimum_order_amount,
		maximum_discount_amount, usage_limit, usage_count, user_usage_limit,
		applicable_categories, applicable_products, valid_from, valid_until,
		is_active, created_at, updated_at`

	findCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons
		WHERE UPPER(code) = $1 AND is_active AND deleted_at IS NULL`

	getCouponByIDSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE id = $1 AND deleted_at IS NULL`

	insertCouponSQL = `INSERT INTO coupons (id, code, discount_type, discount_value,
		minimum_order_amount, maximum_discount_amount, usage_limit, user_usage_limit,
		applicable_categories, applicable_products, valid_from, valid_until, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	updateCouponSQL = `UPDATE coupons SET code = $2, discount_type = $3,
		discount_value = $4, minimum_order_amount = $5, maximum_discount_amount = $6,
		usage_limit = $7, user_usage_limit = $8, applicable_categories = $9,
		applicable_products = $10, valid_from = $11, valid_until = $12,
		is_active = $13, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	// Soft delete only: receipts keep referencing the row for audit.
	softDeleteCouponSQL = `UPDATE coupons SET is_active = FALSE, deleted_at = now(),
		updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	listCouponsSQL = `SELECT c.id, c.code, c.discount_type, c.discount_value,
		c.minimum_order_amount, c.maximum_discount_amount, c.usage_limit,
		c.usage_count, c.user_usage_limit, c.applicable_categories,
		c.applicable_products, c.valid_from, c.valid_until, c.is_active,
		c.created_at, c.updated_at,
		COUNT(u.id), COALESCE(SUM(u.discount_amount), 0)
		FROM coupons c
		LEFT JOIN coupon_usages u ON u.coupon_id = c.id
		WHERE c.deleted_at IS NULL
		GROUP BY c.id
		ORDER BY c.created_at DESC`

	countUserUsagesSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_id = $1 AND user_id = $2`

	usageForOrderExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM coupon_usages WHERE order_id = $1)`

	// The guard makes the increment the authoritative cap enforcement: it
	// only fires while usage_count is strictly below the limit (0 = none).
	tryIncrementUsageSQL = `UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		  AND (usage_limit = 0 OR usage_count < usage_limit)`

	insertUsageSQL = `INSERT INTO coupon_usages
		(id, coupon_id, user_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`
)

var (
	_ coupon.Store      = (*CouponRepository)(nil)
	_ coupon.AdminStore = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Store and coupon.AdminStore backed by
// PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active, non-deleted coupon by its canonical code.
// Returns coupon.ErrNotFound when no matching coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponByCodeSQL, coupon.CanonicalCode(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// GetByID returns a coupon by its identifier, including inactive ones.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return &c, nil
}

// Create persists a new coupon definition. The code is canonicalized to
// uppercase before storage. Returns coupon.ErrCouponExists when the code is
// taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Code = coupon.CanonicalCode(c.Code)

	categories, products, err := encodeScope(c)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue,
		c.MinimumOrder, c.MaxDiscount, c.UsageLimit, c.UserUsageLimit,
		categories, products, c.ValidFrom, c.ValidUntil, c.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrCouponExists
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update rewrites a coupon definition. usage_count is deliberately not
// touched; only ApplyUsage moves it.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	c.Code = coupon.CanonicalCode(c.Code)

	categories, products, err := encodeScope(c)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue,
		c.MinimumOrder, c.MaxDiscount, c.UsageLimit, c.UserUsageLimit,
		categories, products, c.ValidFrom, c.ValidUntil, c.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrCouponExists
		}
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete soft-deletes a coupon: it disappears from lookups and listings but
// historical usage receipts keep a valid reference.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, softDeleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// List returns all non-deleted coupons joined with aggregate usage data.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Stats, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCouponStats)
}

// CountUserUsages returns the number of receipts a user holds for a coupon.
func (r *CouponRepository) CountUserUsages(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, countUserUsagesSQL, couponID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting usages for coupon %q: %w", couponID, err)
	}
	return n, nil
}

// ApplyUsage records a redemption in a single transaction: an idempotency
// check on the order ID, the guarded counter increment, and the receipt
// insert either all land or none do. A failed guard reports the race loss as
// coupon.ErrUsageLimit.
func (r *CouponRepository) ApplyUsage(ctx context.Context, u *coupon.Usage) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("applying usage for order %q: %w", u.OrderID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, usageForOrderExistsSQL, u.OrderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking receipt for order %q: %w", u.OrderID, err)
	}
	if exists {
		// Retried apply for an order that already redeemed: no-op success.
		return false, nil
	}

	tag, err := tx.Exec(ctx, tryIncrementUsageSQL, u.CouponID)
	if err != nil {
		return false, fmt.Errorf("incrementing usage for coupon %q: %w", u.CouponID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, coupon.ErrUsageLimit
	}

	_, err = tx.Exec(ctx, insertUsageSQL,
		u.ID, u.CouponID, u.UserID, u.OrderID, u.Amount, u.UsedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting receipt for order %q: %w", u.OrderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("applying usage for order %q: %w", u.OrderID, err)
	}
	return true, nil
}

// encodeScope serializes the allow-lists for the JSONB columns. Empty lists
// are stored as NULL, meaning "no restriction".
func encodeScope(c *coupon.Coupon) (categories, products []byte, err error) {
	if len(c.Categories) > 0 {
		if categories, err = json.Marshal(c.Categories); err != nil {
			return nil, nil, fmt.Errorf("encoding categories: %w", err)
		}
	}
	if len(c.Products) > 0 {
		if products, err = json.Marshal(c.Products); err != nil {
			return nil, nil, fmt.Errorf("encoding products: %w", err)
		}
	}
	return categories, products, nil
}

// decodeList parses a JSONB allow-list column. ok is false when the stored
// value is malformed; callers mark the coupon's scope corrupt so the engine
// fails closed instead of aborting checkout.
func decodeList(raw []byte) (list []string, ok bool) {
	if len(raw) == 0 {
		return nil, true
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

func scanCouponFields(row pgx.Row, c *coupon.Coupon) error {
	var (
		discountType          string
		rawCategories         []byte
		rawProducts           []byte
		validFrom, validUntil *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.DiscountValue, &c.MinimumOrder,
		&c.MaxDiscount, &c.UsageLimit, &c.UsageCount, &c.UserUsageLimit,
		&rawCategories, &rawProducts, &validFrom, &validUntil,
		&c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return err
	}

	c.DiscountType = coupon.DiscountType(discountType)
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil

	var okCat, okProd bool
	c.Categories, okCat = decodeList(rawCategories)
	c.Products, okProd = decodeList(rawProducts)
	c.ScopeCorrupt = !okCat || !okProd
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := scanCouponFields(row, &c)
	return c, err
}

func scanCouponStats(row pgx.CollectableRow) (coupon.Stats, error) {
	var (
		s                     coupon.Stats
		discountType          string
		rawCategories         []byte
		rawProducts           []byte
		validFrom, validUntil *time.Time
		redemptions           int64
		totalDiscounted       decimal.Decimal
	)
	err := row.Scan(
		&s.ID, &s.Code, &discountType, &s.DiscountValue, &s.MinimumOrder,
		&s.MaxDiscount, &s.UsageLimit, &s.UsageCount, &s.UserUsageLimit,
		&rawCategories, &rawProducts, &validFrom, &validUntil,
		&s.Active, &s.CreatedAt, &s.UpdatedAt,
		&redemptions, &totalDiscounted,
	)
	if err != nil {
		return s, err
	}

	s.DiscountType = coupon.DiscountType(discountType)
	s.ValidFrom = validFrom
	s.ValidUntil = validUntil
	s.Redemptions = int(redemptions)
	s.TotalDiscounted = totalDiscounted

	var okCat, okProd bool
	s.Categories, okCat = decodeList(rawCategories)
	s.Products, okProd = decodeList(rawProducts)
	s.ScopeCorrupt = !okCat || !okProd
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
