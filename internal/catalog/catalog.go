// Package catalog holds the product and category domain types shared by the
// cart, order, and payment flows.
package catalog

import "github.com/shopspring/decimal"

// Product is a catalog item as served by the storefront backend.
type Product struct {
	ID                int64
	Name              string
	Description       string
	Price             decimal.Decimal
	DiscountPercent   int
	QuantityAvailable int
	CategoryID        int64
	ImagePath         string
}

// Category groups products.
type Category struct {
	ID          int64
	Name        string
	Description string
	ImagePath   string
}

var hundred = decimal.NewFromInt(100)

// EffectivePrice returns the unit price after applying the percentage
// discount: price - price*discount/100. The result is intentionally not
// rounded; rounding happens only at the display/amount boundary so that
// summed totals do not accumulate rounding error.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPercent <= 0 {
		return p.Price
	}
	discount := p.Price.Mul(decimal.NewFromInt(int64(p.DiscountPercent))).Div(hundred)
	return p.Price.Sub(discount)
}

// AmountUnits converts a price to whole currency units for the payment
// gateway, which accepts integer amounts only. This is the single place
// where rounding happens.
func AmountUnits(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
