package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a placed customer order with pricing and discount details.
type Order struct {
	ID         string
	UserID     string
	Items      []Item
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	CouponCode string
	CreatedAt  time.Time
}

// Item is a single line item in an order.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// ClearDiscount drops the coupon discount from an already-persisted
	// order, restoring total to subtotal. Used when the coupon's last
	// redemption slot is lost to a concurrent order after this order was
	// written.
	ClearDiscount(ctx context.Context, orderID string) error
}
