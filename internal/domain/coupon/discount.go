package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compute calculates the discount for a coupon over the applicable subtotal.
//
// shippingFee is the amount a free_shipping coupon waives. It comes from the
// caller's shipping policy so the engine never drifts from the real shipping
// calculation. The result is clamped to MaxDiscount when set and rounded
// half-up to currency precision.
func Compute(c *Coupon, applicableSubtotal, shippingFee decimal.Decimal) (Discount, error) {
	var amount decimal.Decimal

	switch c.DiscountType {
	case DiscountPercentage:
		amount = applicableSubtotal.Mul(c.DiscountValue).Div(hundred)
	case DiscountFixed:
		// Never discount more than the applicable subtotal.
		amount = decimal.Min(c.DiscountValue, applicableSubtotal)
	case DiscountFreeShipping:
		amount = shippingFee
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}

	if c.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, c.MaxDiscount)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{
		Type:   c.DiscountType,
		Value:  c.DiscountValue,
		Amount: amount.Round(2),
	}, nil
}
