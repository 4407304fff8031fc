package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recorder persists coupon redemptions. It must be invoked only after the
// order has been durably created — never speculatively during validation.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Apply writes the usage receipt for an order and bumps the coupon's usage
// counter as one transactional unit. It is idempotent on orderID: re-invoking
// it for an order that already holds a receipt is a no-op success, so a
// retried call after a partial failure cannot double-count.
//
// A failed conditional increment means another redemption won the last slot
// between validation and now; that race loss surfaces as ErrUsageLimit and
// the caller must drop the order's discount rather than the order.
func (r *Recorder) Apply(ctx context.Context, code, userID, orderID string, amount decimal.Decimal) error {
	if orderID == "" {
		return errors.New("order id is required")
	}

	// Re-fetch by code so we never act on a stale coupon reference held
	// across the order-creation window.
	c, err := r.store.FindByCode(ctx, CanonicalCode(code))
	if err != nil {
		if _, ok := AsRejection(err); ok {
			return err
		}
		return errors.Wrap(err, "lookup coupon")
	}

	u := &Usage{
		ID:       uuid.New().String(),
		CouponID: c.ID,
		UserID:   userID,
		OrderID:  orderID,
		Amount:   amount,
		UsedAt:   r.now(),
	}

	if _, err := r.store.ApplyUsage(ctx, u); err != nil {
		if _, ok := AsRejection(err); ok {
			return err
		}
		return errors.Wrap(err, "apply usage")
	}
	return nil
}
