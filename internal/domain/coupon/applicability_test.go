package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func line(productID, category string, price string, qty int) Line {
	return Line{
		ProductID: productID,
		Category:  category,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func TestSubtotal(t *testing.T) {
	lines := []Line{
		line("paprika", "Spices", "6.50", 2),
		line("harissa", "Sauces", "5.20", 1),
	}

	got := Subtotal(lines)

	assert.True(t, decimal.RequireFromString("18.20").Equal(got), "got %s", got)
}

func TestSubtotal_Empty(t *testing.T) {
	assert.True(t, Subtotal(nil).IsZero())
}

func TestApplicable(t *testing.T) {
	cart := []Line{
		line("paprika", "Spices", "6.50", 2),
		line("harissa", "Sauces", "5.20", 1),
		line("tahini", "Pantry", "6.90", 1),
	}

	tests := []struct {
		name         string
		coupon       *Coupon
		lines        []Line
		wantProducts []string
		wantSubtotal string
	}{
		{
			name:         "no allow-lists admits entire cart",
			coupon:       &Coupon{},
			lines:        cart,
			wantProducts: []string{"paprika", "harissa", "tahini"},
			wantSubtotal: "25.10",
		},
		{
			name:         "category allow-list",
			coupon:       &Coupon{Categories: []string{"Spices"}},
			lines:        cart,
			wantProducts: []string{"paprika"},
			wantSubtotal: "13.00",
		},
		{
			name:         "product allow-list",
			coupon:       &Coupon{Products: []string{"tahini"}},
			lines:        cart,
			wantProducts: []string{"tahini"},
			wantSubtotal: "6.90",
		},
		{
			name: "product and category lists are unioned",
			coupon: &Coupon{
				Categories: []string{"Sauces"},
				Products:   []string{"tahini"},
			},
			lines:        cart,
			wantProducts: []string{"harissa", "tahini"},
			wantSubtotal: "12.10",
		},
		{
			name:         "no line matches",
			coupon:       &Coupon{Categories: []string{"Teas"}},
			lines:        cart,
			wantProducts: nil,
			wantSubtotal: "0",
		},
		{
			name:         "corrupt scope admits nothing",
			coupon:       &Coupon{ScopeCorrupt: true},
			lines:        cart,
			wantProducts: nil,
			wantSubtotal: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, subtotal := Applicable(tt.coupon, tt.lines)

			ids := make([]string, 0, len(got))
			for _, l := range got {
				ids = append(ids, l.ProductID)
			}
			if len(tt.wantProducts) == 0 {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tt.wantProducts, ids)
			}
			want := decimal.RequireFromString(tt.wantSubtotal)
			assert.True(t, want.Equal(subtotal), "expected subtotal %s, got %s", want, subtotal)
		})
	}
}
