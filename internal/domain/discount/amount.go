package discount

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Applied is the discount descriptor kept in the visitor session between
// apply and checkout. Checkout recomputes the amount from it.
type Applied struct {
	Code        string              `json:"code"`
	Type        Type                `json:"type"`
	Value       decimal.Decimal     `json:"value"`
	MaxDiscount decimal.NullDecimal `json:"maxDiscount"`
}

// Amount computes the discount for subtotal. Percentage discounts take
// value percent of the subtotal, fixed discounts take value; both are
// capped by MaxDiscount when set.
func (a Applied) Amount(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch a.Type {
	case TypePercentage:
		amount = subtotal.Mul(a.Value).Div(hundred)
	case TypeFixed:
		amount = a.Value
	default:
		return decimal.Zero
	}
	if a.MaxDiscount.Valid && amount.GreaterThan(a.MaxDiscount.Decimal) {
		amount = a.MaxDiscount.Decimal
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}
