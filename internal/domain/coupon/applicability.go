package coupon

import "github.com/shopspring/decimal"

// Subtotal returns the sum of unit price times quantity across all lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Applicable resolves which cart lines the coupon's allow-lists admit and
// returns them together with their subtotal.
//
// When both allow-lists are empty every line applies. Otherwise a line
// applies when its product ID is allow-listed OR its category is — membership
// in either list is sufficient. The minimum-order check elsewhere uses the
// full-cart subtotal; the discount is computed only over the subtotal
// returned here.
func Applicable(c *Coupon, lines []Line) ([]Line, decimal.Decimal) {
	if c.ScopeCorrupt {
		return nil, decimal.Zero
	}
	if len(c.Categories) == 0 && len(c.Products) == 0 {
		return lines, Subtotal(lines)
	}

	products := make(map[string]struct{}, len(c.Products))
	for _, id := range c.Products {
		products[id] = struct{}{}
	}
	categories := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		categories[cat] = struct{}{}
	}

	var (
		applicable []Line
		subtotal   = decimal.Zero
	)
	for _, l := range lines {
		if _, ok := products[l.ProductID]; !ok {
			if _, ok = categories[l.Category]; !ok {
				continue
			}
		}
		applicable = append(applicable, l)
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return applicable, subtotal
}
