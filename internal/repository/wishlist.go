package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/wishlist"
)

const (
	// foreignKeyViolation is the PostgreSQL SQLSTATE for foreign_key_violation.
	foreignKeyViolation = "23503"

	addWishlistSQL = `INSERT INTO wishlist_entries (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	removeWishlistSQL = `DELETE FROM wishlist_entries WHERE user_id = $1 AND product_id = $2`

	listWishlistSQL = `SELECT p.id, p.name, p.description, p.price, COALESCE(p.category_id, ''), p.image,
		p.stock, p.rating, p.review_count, p.created_at
		FROM wishlist_entries w JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1 ORDER BY w.created_at DESC`
)

var _ wishlist.Repository = (*WishlistRepository)(nil)

// WishlistRepository implements wishlist.Repository backed by PostgreSQL.
type WishlistRepository struct {
	pool *pgxpool.Pool
}

// NewWishlistRepository returns a WishlistRepository that uses the given pool.
func NewWishlistRepository(pool *pgxpool.Pool) *WishlistRepository {
	return &WishlistRepository{pool: pool}
}

// Add saves the product to the user's wishlist. Adding twice is a no-op.
func (r *WishlistRepository) Add(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, addWishlistSQL, userID, productID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return product.ErrNotFound
		}
		return fmt.Errorf("adding %q to wishlist: %w", productID, err)
	}
	return nil
}

// Remove deletes the product from the user's wishlist.
func (r *WishlistRepository) Remove(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, removeWishlistSQL, userID, productID); err != nil {
		return fmt.Errorf("removing %q from wishlist: %w", productID, err)
	}
	return nil
}

// List returns the wishlisted products, most recently added first.
func (r *WishlistRepository) List(ctx context.Context, userID string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listWishlistSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wishlist: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}
