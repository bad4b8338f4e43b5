package wishlist

import (
	"context"

	"github.com/xenking/bakery-shop/internal/domain/product"
)

// Repository stores per-user wishlists. Add is idempotent and returns
// product.ErrNotFound for unknown products.
type Repository interface {
	Add(ctx context.Context, userID, productID string) error
	Remove(ctx context.Context, userID, productID string) error
	List(ctx context.Context, userID string) ([]product.Product, error)
}
