package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	shippingFee := decimal.RequireFromString("4.99")

	tests := []struct {
		name       string
		coupon     *Coupon
		subtotal   string
		wantAmount string
	}{
		{
			name: "percentage of subtotal",
			coupon: &Coupon{
				DiscountType:  DiscountPercentage,
				DiscountValue: decimal.NewFromInt(20),
			},
			subtotal:   "100",
			wantAmount: "20",
		},
		{
			name: "percentage hits max discount cap",
			coupon: &Coupon{
				DiscountType:  DiscountPercentage,
				DiscountValue: decimal.NewFromInt(20),
				MaxDiscount:   decimal.NewFromInt(15),
			},
			subtotal:   "100",
			wantAmount: "15",
		},
		{
			name: "percentage under max discount cap",
			coupon: &Coupon{
				DiscountType:  DiscountPercentage,
				DiscountValue: decimal.NewFromInt(20),
				MaxDiscount:   decimal.NewFromInt(15),
			},
			subtotal:   "50",
			wantAmount: "10",
		},
		{
			name: "percentage rounds to currency precision",
			coupon: &Coupon{
				DiscountType:  DiscountPercentage,
				DiscountValue: decimal.NewFromInt(15),
			},
			subtotal:   "19.99",
			wantAmount: "3.00",
		},
		{
			name: "fixed amount under subtotal",
			coupon: &Coupon{
				DiscountType:  DiscountFixed,
				DiscountValue: decimal.NewFromInt(5),
			},
			subtotal:   "42",
			wantAmount: "5",
		},
		{
			name: "fixed amount clamped to subtotal",
			coupon: &Coupon{
				DiscountType:  DiscountFixed,
				DiscountValue: decimal.NewFromInt(30),
			},
			subtotal:   "20",
			wantAmount: "20",
		},
		{
			name: "free shipping waives the fee",
			coupon: &Coupon{
				DiscountType: DiscountFreeShipping,
			},
			subtotal:   "50",
			wantAmount: "4.99",
		},
		{
			name: "free shipping respects max discount",
			coupon: &Coupon{
				DiscountType: DiscountFreeShipping,
				MaxDiscount:  decimal.RequireFromString("3.00"),
			},
			subtotal:   "50",
			wantAmount: "3.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.coupon, decimal.RequireFromString(tt.subtotal), shippingFee)

			require.NoError(t, err)
			want := decimal.RequireFromString(tt.wantAmount)
			assert.True(t, want.Equal(got.Amount),
				"expected amount %s, got %s", want, got.Amount)
			assert.Equal(t, tt.coupon.DiscountType, got.Type)
		})
	}
}

func TestCompute_UnknownType(t *testing.T) {
	_, err := Compute(&Coupon{DiscountType: "bogus"}, decimal.NewFromInt(100), decimal.Zero)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
}
