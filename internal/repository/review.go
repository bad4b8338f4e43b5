package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bakery-shop/internal/domain/review"
)

const (
	reviewExistsSQL = `SELECT EXISTS (SELECT 1 FROM reviews
		WHERE user_id = $1 AND product_id = $2 AND order_id = $3)`

	createReviewSQL = `INSERT INTO reviews (id, product_id, user_id, order_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	refreshProductRatingSQL = `UPDATE products p SET
		rating = agg.avg_rating, review_count = agg.cnt
		FROM (SELECT COALESCE(AVG(rating), 0)::float8 AS avg_rating, count(*) AS cnt
			FROM reviews WHERE product_id = $1) agg
		WHERE p.id = $1`

	listReviewsByProductSQL = `SELECT r.id, r.product_id, r.user_id, COALESCE(u.name, ''), r.order_id,
		r.rating, r.comment, r.created_at
		FROM reviews r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.product_id = $1 ORDER BY r.created_at DESC`
)

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Exists reports whether the user already reviewed the product for the order.
func (r *ReviewRepository) Exists(ctx context.Context, userID, productID, orderID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, reviewExistsSQL, userID, productID, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking review: %w", err)
	}
	return exists, nil
}

// Create inserts the review and recomputes the product's rating and review
// count in the same transaction.
func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	return execTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createReviewSQL,
			rv.ID, rv.ProductID, rv.UserID, rv.OrderID, rv.Rating, rv.Comment, rv.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return review.ErrDuplicate
			}
			return fmt.Errorf("creating review: %w", err)
		}
		if _, err := tx.Exec(ctx, refreshProductRatingSQL, rv.ProductID); err != nil {
			return fmt.Errorf("refreshing rating of product %q: %w", rv.ProductID, err)
		}
		return nil
	})
}

// ListByProduct returns a product's reviews, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]review.Review, error) {
	rows, err := r.pool.Query(ctx, listReviewsByProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews of product %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (review.Review, error) {
		var rv review.Review
		err := row.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.UserName, &rv.OrderID,
			&rv.Rating, &rv.Comment, &rv.CreatedAt)
		return rv, err
	})
}
