package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spicekart/coupon-service/internal/domain/coupon"
	"github.com/spicekart/coupon-service/internal/domain/product"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyItems      = fmt.Errorf("items required")
	ErrInvalidQuantity = fmt.Errorf("quantity must be greater than 0")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// CheckoutRequest holds the input shared by preview and order placement.
// UserID is empty for guest checkouts.
type CheckoutRequest struct {
	UserID     string
	Items      []Item
	CouponCode string
}

// Preview is the outcome of a dry-run coupon validation over a cart.
// A rejected coupon is an expected outcome, reported through Reason rather
// than an error; system faults surface as errors.
type Preview struct {
	Subtotal decimal.Decimal
	Discount *coupon.Discount
	Reason   coupon.Reason
	Total    decimal.Decimal
}

// Valid reports whether the previewed coupon can be applied.
func (p *Preview) Valid() bool {
	return p.Reason == ""
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Service encapsulates checkout business logic: it assembles cart line
// snapshots from the catalog, runs coupon validation, persists orders, and
// records coupon usage strictly after durable order creation.
type Service struct {
	products  product.Repository
	validator *coupon.Validator
	recorder  *coupon.Recorder
	orders    Repository
}

// NewService creates a checkout Service with the required dependencies.
func NewService(
	products product.Repository,
	validator *coupon.Validator,
	recorder *coupon.Recorder,
	orders Repository,
) *Service {
	return &Service{
		products:  products,
		validator: validator,
		recorder:  recorder,
		orders:    orders,
	}
}

// buildLines validates quantities, batch-fetches products, and returns the
// cart line snapshots (with denormalized categories) plus the fetched
// products in request order.
func (s *Service) buildLines(ctx context.Context, items []Item) ([]coupon.Line, []product.Product, error) {
	if len(items) == 0 {
		return nil, nil, ErrEmptyItems
	}

	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]coupon.Line, len(items))
	products := make([]product.Product, len(items))
	for i, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products[i] = p
		lines[i] = coupon.Line{
			ProductID: p.ID,
			Category:  p.Category,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
		}
	}
	return lines, products, nil
}

// PreviewCheckout validates the coupon against the cart without any side
// effects. Shoppers use this to see the discount before committing.
func (s *Service) PreviewCheckout(ctx context.Context, req CheckoutRequest) (*Preview, error) {
	lines, _, err := s.buildLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	subtotal := coupon.Subtotal(lines).Round(2)
	p := &Preview{Subtotal: subtotal, Total: subtotal}
	if req.CouponCode == "" {
		return p, nil
	}

	d, err := s.validator.Validate(ctx, req.CouponCode, req.UserID, lines)
	if err != nil {
		if rej, ok := coupon.AsRejection(err); ok {
			p.Reason = rej.Reason
			return p, nil
		}
		return nil, errors.Wrap(err, "validate coupon")
	}

	p.Discount = d
	p.Total = flooredTotal(subtotal, d.Amount)
	return p, nil
}

// PlaceOrder validates items and coupon, persists the order, and records the
// coupon usage. A coupon rejection aborts the order before anything is
// written. Usage recording happens only after the order is durable; its
// failure never rolls the order back.
func (s *Service) PlaceOrder(ctx context.Context, req CheckoutRequest) (*PlaceOrderResult, error) {
	lines, products, err := s.buildLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	subtotal := coupon.Subtotal(lines).Round(2)

	couponCode := ""
	discountAmount := decimal.Zero
	if req.CouponCode != "" {
		d, err := s.validator.Validate(ctx, req.CouponCode, req.UserID, lines)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		couponCode = coupon.CanonicalCode(req.CouponCode)
		discountAmount = d.Amount
	}

	o := &Order{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Items:      req.Items,
		Subtotal:   subtotal,
		Discount:   discountAmount,
		Total:      flooredTotal(subtotal, discountAmount),
		CouponCode: couponCode,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if couponCode != "" {
		s.recordUsage(ctx, o)
	}

	return &PlaceOrderResult{Order: o, Products: products}, nil
}

// recordUsage applies the coupon usage for a durably created order. The
// validation-time cap check is only advisory; the conditional increment here
// is authoritative, and losing it to a concurrent redemption strips the
// discount from this order instead of failing it.
func (s *Service) recordUsage(ctx context.Context, o *Order) {
	lg := zctx.From(ctx)

	err := s.recorder.Apply(ctx, o.CouponCode, o.UserID, o.ID, o.Discount)
	if err == nil {
		return
	}

	if errors.Is(err, coupon.ErrUsageLimit) {
		if clearErr := s.orders.ClearDiscount(ctx, o.ID); clearErr != nil {
			lg.Error("clear discount after usage race loss",
				zap.String("order_id", o.ID),
				zap.String("coupon_code", o.CouponCode),
				zap.Error(clearErr),
			)
			return
		}
		lg.Warn("coupon usage cap hit by concurrent order, discount dropped",
			zap.String("order_id", o.ID),
			zap.String("coupon_code", o.CouponCode),
		)
		o.Discount = decimal.Zero
		o.Total = o.Subtotal
		return
	}

	// The order already exists and belongs to the shopper; a failure here is
	// a cap-enforcement gap that needs manual reconciliation, not a rollback.
	lg.Error("coupon usage recording failed, reconciliation required",
		zap.String("order_id", o.ID),
		zap.String("coupon_code", o.CouponCode),
		zap.Error(err),
	)
}

// flooredTotal subtracts the discount from the subtotal, flooring at zero
// and rounding to currency precision.
func flooredTotal(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}
