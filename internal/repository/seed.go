package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bakery-shop/internal/domain/auth"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/user"
)

const (
	upsertCategorySQL = `INSERT INTO categories (id, name, description) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description`

	upsertProductSQL = `INSERT INTO products (id, name, description, price, category_id, image, stock)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			price = EXCLUDED.price, category_id = EXCLUDED.category_id, image = EXCLUDED.image,
			stock = EXCLUDED.stock`

	upsertUserSQL = `INSERT INTO users (id, email, role, name, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role`

	upsertDiscountSQL = `INSERT INTO discounts (id, code, description, type, value, min_order_value,
		max_discount, usage_limit, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, type = EXCLUDED.type,
			value = EXCLUDED.value, min_order_value = EXCLUDED.min_order_value,
			max_discount = EXCLUDED.max_discount, usage_limit = EXCLUDED.usage_limit,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			is_active = EXCLUDED.is_active`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			scopes = EXCLUDED.scopes, active = TRUE`
)

// SeedData is a full catalog snapshot loaded by the seeding tool.
type SeedData struct {
	Categories []product.Category
	Products   []product.Product
	Users      []user.User
	Discounts  []discount.Discount
	APIKeys    []auth.APIKeyInfo
}

// Seeder upserts reference data. Re-running a seed is safe.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// Seed upserts everything in data in a single transaction.
func (s *Seeder) Seed(ctx context.Context, data *SeedData) error {
	return execTx(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range data.Categories {
			batch.Queue(upsertCategorySQL, c.ID, c.Name, c.Description)
		}
		for _, p := range data.Products {
			batch.Queue(upsertProductSQL, p.ID, p.Name, p.Description, p.Price, p.CategoryID, p.Image, p.Stock)
		}
		for _, u := range data.Users {
			batch.Queue(upsertUserSQL, u.ID, u.Email, u.Role, u.Contact.Name, u.Contact.Phone, u.Contact.Address)
		}
		for _, d := range data.Discounts {
			batch.Queue(upsertDiscountSQL,
				d.ID, d.Code, d.Description, string(d.Type), d.Value, d.MinOrderValue,
				d.MaxDiscount, d.UsageLimit, d.StartDate, d.EndDate, d.Active,
			)
		}
		for _, k := range data.APIKeys {
			batch.Queue(upsertAPIKeySQL, k.ID, k.KeyHash, k.Name, k.Scopes)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting seed data: %w", err)
		}
		return nil
	})
}
