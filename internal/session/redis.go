// Package session stores visitor session state in Redis: the cart, the
// applied discount descriptor and the authenticated user id.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/discount"
)

const (
	keyPrefix = "bakery:session:"

	fieldCart     = "cart"
	fieldDiscount = "discount"
	fieldUser     = "user"
)

var _ cart.Store = (*Store)(nil)

// Store keeps each session in one Redis hash. Every write refreshes the TTL.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient connects to Redis at url (redis://[:password@]host:port/db).
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}

// New creates a Store with the given session lifetime.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(sessionID string) string { return keyPrefix + sessionID }

func (s *Store) Cart(ctx context.Context, sessionID string) ([]cart.Line, error) {
	var lines []cart.Line
	if _, err := s.get(ctx, sessionID, fieldCart, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) SetCart(ctx context.Context, sessionID string, lines []cart.Line) error {
	if len(lines) == 0 {
		return s.del(ctx, sessionID, fieldCart)
	}
	return s.set(ctx, sessionID, fieldCart, lines)
}

func (s *Store) AppliedDiscount(ctx context.Context, sessionID string) (*discount.Applied, error) {
	var a discount.Applied
	ok, err := s.get(ctx, sessionID, fieldDiscount, &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

func (s *Store) SetAppliedDiscount(ctx context.Context, sessionID string, a *discount.Applied) error {
	if a == nil {
		return s.del(ctx, sessionID, fieldDiscount)
	}
	return s.set(ctx, sessionID, fieldDiscount, a)
}

// Clear forgets the cart and the applied discount. The user binding stays.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.del(ctx, sessionID, fieldCart, fieldDiscount)
}

// UserID returns the user bound to the session, or "" for guests.
func (s *Store) UserID(ctx context.Context, sessionID string) (string, error) {
	id, err := s.rdb.HGet(ctx, key(sessionID), fieldUser).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "get session user")
	}
	return id, nil
}

// SetUserID binds the session to a user. The login service calls it.
func (s *Store) SetUserID(ctx context.Context, sessionID, userID string) error {
	return s.write(ctx, sessionID, func(pipe redis.Pipeliner, k string) {
		pipe.HSet(ctx, k, fieldUser, userID)
	})
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) get(ctx context.Context, sessionID, field string, v any) (bool, error) {
	raw, err := s.rdb.HGet(ctx, key(sessionID), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get session %s", field)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "decode session %s", field)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, sessionID, field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode session %s", field)
	}
	return s.write(ctx, sessionID, func(pipe redis.Pipeliner, k string) {
		pipe.HSet(ctx, k, field, raw)
	})
}

func (s *Store) del(ctx context.Context, sessionID string, fields ...string) error {
	return s.write(ctx, sessionID, func(pipe redis.Pipeliner, k string) {
		pipe.HDel(ctx, k, fields...)
	})
}

func (s *Store) write(ctx context.Context, sessionID string, fn func(pipe redis.Pipeliner, k string)) error {
	k := key(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(pipe, k)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "write session")
	}
	return nil
}
