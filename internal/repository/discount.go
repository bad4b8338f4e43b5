package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bakery-shop/internal/domain/discount"
)

const (
	discountColumns = `id, code, description, type, value, min_order_value, max_discount,
		usage_limit, used_count, start_date, end_date, is_active, created_at`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE code = upper($1) AND is_active = TRUE`

	listDiscountsSQL = `SELECT ` + discountColumns + ` FROM discounts ORDER BY created_at DESC, code`

	createDiscountSQL = `INSERT INTO discounts (id, code, description, type, value, min_order_value,
		max_discount, usage_limit, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING used_count, created_at`

	incrementDiscountUsedSQL = `UPDATE discounts SET used_count = used_count + 1 WHERE code = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks up an active discount by its code (case-insensitive).
// Returns discount.ErrInvalidCode when no matching active discount exists.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrInvalidCode
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &d, nil
}

// Create inserts a new discount. A taken code yields discount.ErrCodeExists.
func (r *DiscountRepository) Create(ctx context.Context, d *discount.Discount) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	err := r.pool.QueryRow(ctx, createDiscountSQL,
		d.ID, d.Code, d.Description, string(d.Type), d.Value, d.MinOrderValue,
		d.MaxDiscount, d.UsageLimit, d.StartDate, d.EndDate, d.Active,
	).Scan(&d.UsedCount, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return discount.ErrCodeExists
		}
		return fmt.Errorf("creating discount %q: %w", d.Code, err)
	}
	return nil
}

// List returns every discount, newest first.
func (r *DiscountRepository) List(ctx context.Context) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, listDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

func incrementDiscountUsed(ctx context.Context, q DBTX, code string) error {
	tag, err := q.Exec(ctx, incrementDiscountUsedSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing usage of discount %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrInvalidCode
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d          discount.Discount
		typ        string
		usageLimit *int32
	)
	err := row.Scan(
		&d.ID, &d.Code, &d.Description, &typ, &d.Value, &d.MinOrderValue, &d.MaxDiscount,
		&usageLimit, &d.UsedCount, &d.StartDate, &d.EndDate, &d.Active, &d.CreatedAt,
	)
	d.Type = discount.Type(typ)
	if usageLimit != nil {
		limit := int(*usageLimit)
		d.UsageLimit = &limit
	}
	return d, err
}
