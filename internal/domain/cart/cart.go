package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/product"
)

var (
	// ErrEmpty is returned when an operation needs a non-empty cart.
	ErrEmpty = errors.New("cart is empty")
	// ErrInvalidQuantity is returned for a non-positive quantity on add.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrNotInCart is returned when updating a product the cart does not hold.
	ErrNotInCart = errors.New("product not in cart")
)

// Line is a product and quantity held in the session cart.
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Store is the per-visitor session state: the cart, the applied discount
// descriptor and the authenticated user id.
type Store interface {
	Cart(ctx context.Context, sessionID string) ([]Line, error)
	SetCart(ctx context.Context, sessionID string, lines []Line) error
	AppliedDiscount(ctx context.Context, sessionID string) (*discount.Applied, error)
	SetAppliedDiscount(ctx context.Context, sessionID string, a *discount.Applied) error
	Clear(ctx context.Context, sessionID string) error
}

// ViewLine is a cart line joined with its catalog product.
type ViewLine struct {
	Product  product.Product
	Quantity int
	Subtotal decimal.Decimal
}

// View is the priced cart shown to the visitor.
type View struct {
	Lines    []ViewLine
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Applied  *discount.Applied
}
