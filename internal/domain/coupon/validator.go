package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator sequences the validation checks for a coupon code against a cart
// snapshot. Checks run in a fixed order and the first failure terminates the
// call with its tagged rejection; validation itself never mutates state, so
// repeated calls with unchanged inputs return identical results.
//
// The global usage cap check here is only a fast-path rejection. The
// authoritative enforcement is the conditional increment inside
// Store.ApplyUsage at redemption time.
type Validator struct {
	store       Store
	shippingFee decimal.Decimal
	now         func() time.Time
}

// NewValidator creates a Validator. shippingFee is the flat amount a
// free_shipping coupon waives, supplied by the caller's shipping policy.
func NewValidator(store Store, shippingFee decimal.Decimal) *Validator {
	return &Validator{
		store:       store,
		shippingFee: shippingFee,
		now:         time.Now,
	}
}

// Validate checks code against the cart lines and returns the discount to
// apply. userID is empty for guest checkouts; per-user caps cannot be
// enforced without an identity and are skipped for guests.
//
// The order subtotal is recomputed from lines — a caller-supplied figure is
// never trusted, so a stale or manipulated subtotal cannot bypass the
// minimum-order check.
func (v *Validator) Validate(ctx context.Context, code, userID string, lines []Line) (*Discount, error) {
	c, err := v.store.FindByCode(ctx, CanonicalCode(code))
	if err != nil {
		if _, ok := AsRejection(err); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, ErrExpired
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return nil, ErrExpired
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, ErrUsageLimit
	}

	if userID != "" && c.UserUsageLimit > 0 {
		used, err := v.store.CountUserUsages(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user usages")
		}
		if used >= c.UserUsageLimit {
			return nil, ErrUserLimit
		}
	}

	// Minimum order is judged against the full cart; the discount below is
	// computed only over the applicable subset.
	subtotal := Subtotal(lines)
	if c.MinimumOrder.IsPositive() && subtotal.LessThan(c.MinimumOrder) {
		return nil, ErrBelowMinimum
	}

	applicable, applicableSubtotal := Applicable(c, lines)
	if len(applicable) == 0 {
		return nil, ErrNotApplicable
	}

	d, err := Compute(c, applicableSubtotal, v.shippingFee)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
