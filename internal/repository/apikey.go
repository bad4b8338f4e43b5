package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bakery-shop/internal/domain/auth"
)

const (
	// Column order matches auth.APIKeyInfo for positional scanning.
	apiKeyColumns = `id, key_hash, name, scopes`

	findAPIKeySQL = `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE key_hash = $1 AND active`

	listAPIKeysSQL = `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE active ORDER BY name, id`

	revokeAPIKeySQL = `UPDATE api_keys SET active = FALSE WHERE name = $1 AND active`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository stores back-office API keys. Keys are never deleted;
// revoking one deactivates it so the hash cannot be reused by mistake.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash returns the active key with the given hex HMAC hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	rows, err := r.pool.Query(ctx, findAPIKeySQL, hash)
	if err != nil {
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	key, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[auth.APIKeyInfo])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return key, nil
}

// List returns the active keys ordered by name.
func (r *APIKeyRepository) List(ctx context.Context) ([]auth.APIKeyInfo, error) {
	rows, err := r.pool.Query(ctx, listAPIKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowToStructByPos[auth.APIKeyInfo])
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return keys, nil
}

// Revoke deactivates the active keys named name. It returns
// auth.ErrKeyNotFound when there is none.
func (r *APIKeyRepository) Revoke(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, revokeAPIKeySQL, name)
	if err != nil {
		return fmt.Errorf("revoking api key %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrKeyNotFound
	}
	return nil
}
