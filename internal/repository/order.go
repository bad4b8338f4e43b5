package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/xenking/bakery-shop/internal/domain/order"
)

const (
	orderColumns = `id, user_id, total_price, discount_code, discount_amount, final_price,
		payment_method, payment_status, payment_ref, payment_message, paid_at, status,
		stock_deducted, discount_used, shipping_name, shipping_phone, shipping_address, created_at`

	createOrderSQL = `INSERT INTO orders (id, user_id, total_price, discount_code, discount_amount,
		final_price, payment_method, payment_status, status, shipping_name, shipping_phone,
		shipping_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	// $1 status filter (may be empty), $2 limit.
	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`

	listOrderItemsSQL = `SELECT order_id, product_id, quantity, price FROM order_items
		WHERE order_id = ANY($1) ORDER BY order_id, position`

	markPaidSQL = `UPDATE orders SET payment_status = 'paid', payment_ref = $2,
		payment_message = $3, paid_at = $4,
		status = CASE WHEN status = 'pending' THEN $5 ELSE status END
		WHERE id = $1 AND payment_status <> 'paid' AND status <> 'cancelled'`

	markFailedSQL = `UPDATE orders SET payment_status = 'failed', payment_message = $2
		WHERE id = $1 AND payment_status <> 'paid'`

	updateStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	claimStockDeductionSQL = `UPDATE orders SET stock_deducted = TRUE
		WHERE id = $1 AND NOT stock_deducted`

	claimDiscountUsageSQL = `UPDATE orders SET discount_used = TRUE
		WHERE id = $1 AND NOT discount_used`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	defaultListLimit = 100
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Transactor = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.Transactor backed
// by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return execTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.UserID, o.TotalPrice, o.DiscountCode, o.DiscountAmount, o.FinalPrice,
			string(o.PaymentMethod), string(o.PaymentStatus), string(o.Status),
			o.Shipping.Name, o.Shipping.Phone, o.Shipping.Address, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"order_items"},
			[]string{"order_id", "position", "product_id", "quantity", "price"},
			pgx.CopyFromSlice(len(o.Items), func(i int) ([]any, error) {
				it := o.Items[i]
				return []any{o.ID, i, it.ProductID, it.Quantity, it.Price}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("creating items of order %q: %w", o.ID, err)
		}
		return nil
	})
}

// Get returns an order with its lines.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByUserSQL, userID)
}

// List returns orders for the back office, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	return r.list(ctx, listOrdersSQL, string(f.Status), limit)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := lo.Map(orders, func(o order.Order, _ int) string { return o.ID })

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	type row struct {
		orderID string
		item    order.Item
	}
	items, err := pgx.CollectRows(rows, func(cr pgx.CollectableRow) (row, error) {
		var it row
		err := cr.Scan(&it.orderID, &it.item.ProductID, &it.item.Quantity, &it.item.Price)
		return it, err
	})
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	byOrder := lo.GroupBy(items, func(it row) string { return it.orderID })
	for i := range orders {
		orders[i].Items = lo.Map(byOrder[orders[i].ID], func(it row, _ int) order.Item { return it.item })
	}
	return nil
}

// MarkPaid stamps the payment onto the order unless it is already paid
// or cancelled.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, p order.Payment) (bool, error) {
	tag, err := r.pool.Exec(ctx, markPaidSQL, id, p.Ref, p.Message, p.PaidAt, string(p.Status))
	if err != nil {
		return false, fmt.Errorf("marking order %q paid: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a payment failure unless the order is already paid.
func (r *OrderRepository) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	tag, err := r.pool.Exec(ctx, markFailedSQL, id, message)
	if err != nil {
		return false, fmt.Errorf("marking order %q failed: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus moves the fulfillment status from one value to another.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, updateStatusSQL, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("updating status of order %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// InTx runs fn with a settlement bound to a single transaction.
func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, s order.Settlement) error) error {
	return execTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &settlement{tx: tx})
	})
}

// settlement implements order.Settlement on an open transaction.
type settlement struct {
	tx pgx.Tx
}

func (s *settlement) ClaimStockDeduction(ctx context.Context, orderID string) (bool, error) {
	return s.claim(ctx, claimStockDeductionSQL, orderID)
}

func (s *settlement) ClaimDiscountUsage(ctx context.Context, orderID string) (bool, error) {
	return s.claim(ctx, claimDiscountUsageSQL, orderID)
}

func (s *settlement) claim(ctx context.Context, sql, orderID string) (bool, error) {
	tag, err := s.tx.Exec(ctx, sql, orderID)
	if err != nil {
		return false, fmt.Errorf("claiming fence of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.tx.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking order %q: %w", orderID, err)
	}
	if !exists {
		return false, order.ErrNotFound
	}
	return false, nil
}

func (s *settlement) DecrementStock(ctx context.Context, productID string, qty int) error {
	return decrementStock(ctx, s.tx, productID, qty)
}

func (s *settlement) IncrementUsed(ctx context.Context, code string) error {
	return incrementDiscountUsed(ctx, s.tx, code)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                      order.Order
		method, payment, state string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.TotalPrice, &o.DiscountCode, &o.DiscountAmount, &o.FinalPrice,
		&method, &payment, &o.PaymentRef, &o.PaymentMessage, &o.PaidAt, &state,
		&o.StockDeducted, &o.DiscountUsed,
		&o.Shipping.Name, &o.Shipping.Phone, &o.Shipping.Address, &o.CreatedAt,
	)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(payment)
	o.Status = order.Status(state)
	return o, err
}
