package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bakery-shop/internal/domain/user"
)

const (
	getUserSQL = `SELECT id, email, role, name, phone, address FROM users WHERE id = $1`

	updateUserContactSQL = `UPDATE users SET name = $2, phone = $3, address = $4 WHERE id = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, getUserSQL, id).Scan(
		&u.ID, &u.Email, &u.Role, &u.Contact.Name, &u.Contact.Phone, &u.Contact.Address,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// UpdateContact stores the shipping contact on the user's profile.
func (r *UserRepository) UpdateContact(ctx context.Context, id string, c user.Contact) error {
	tag, err := r.pool.Exec(ctx, updateUserContactSQL, id, c.Name, c.Phone, c.Address)
	if err != nil {
		return fmt.Errorf("updating contact of user %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}
