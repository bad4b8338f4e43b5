package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-shop/internal/domain/discount"
)

// Totals is the priced summary of a set of order lines.
type Totals struct {
	Total          decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	Final          decimal.Decimal
}

// Price sums the lines and applies the optional discount descriptor.
// The final price is floored at zero.
func Price(items []Item, applied *discount.Applied) Totals {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}

	t := Totals{Total: total.Round(2), DiscountAmount: decimal.Zero}
	if applied != nil {
		t.DiscountCode = applied.Code
		t.DiscountAmount = applied.Amount(total)
	}

	final := total.Sub(t.DiscountAmount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	t.Final = final.Round(2)
	return t
}
