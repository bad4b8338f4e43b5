package memstore

import (
	"context"
	"slices"
	"sort"

	"github.com/xenking/bakery-shop/internal/domain/auth"
	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/review"
	"github.com/xenking/bakery-shop/internal/domain/user"
)

// Users implements user.Repository.
type Users struct{ s *Store }

func (r *Users) GetByID(_ context.Context, id string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *Users) UpdateContact(_ context.Context, id string, c user.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Contact = c
	return nil
}

// Reviews implements review.Repository.
type Reviews struct{ s *Store }

func (r *Reviews) Exists(_ context.Context, userID, productID, orderID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.ContainsFunc(r.s.reviews, func(rv review.Review) bool {
		return rv.UserID == userID && rv.ProductID == productID && rv.OrderID == orderID
	}), nil
}

func (r *Reviews) Create(_ context.Context, rv *review.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.reviews {
		if x.UserID == rv.UserID && x.ProductID == rv.ProductID && x.OrderID == rv.OrderID {
			return review.ErrDuplicate
		}
	}
	r.s.reviews = append(r.s.reviews, *rv)

	if p, ok := r.s.products[rv.ProductID]; ok {
		sum, n := 0, 0
		for _, x := range r.s.reviews {
			if x.ProductID == rv.ProductID {
				sum += x.Rating
				n++
			}
		}
		p.ReviewCount = n
		p.Rating = float64(sum) / float64(n)
	}
	return nil
}

func (r *Reviews) ListByProduct(_ context.Context, productID string) ([]review.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []review.Review
	for _, x := range r.s.reviews {
		if x.ProductID == productID {
			out = append(out, x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Wishlists implements wishlist.Repository.
type Wishlists struct{ s *Store }

func (r *Wishlists) Add(_ context.Context, userID, productID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[productID]; !ok {
		return product.ErrNotFound
	}
	if !slices.Contains(r.s.wishlists[userID], productID) {
		r.s.wishlists[userID] = append(r.s.wishlists[userID], productID)
	}
	return nil
}

func (r *Wishlists) Remove(_ context.Context, userID, productID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.wishlists[userID] = slices.DeleteFunc(r.s.wishlists[userID], func(id string) bool { return id == productID })
	return nil
}

func (r *Wishlists) List(_ context.Context, userID string) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []product.Product
	for _, id := range r.s.wishlists[userID] {
		if p, ok := r.s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Sessions implements cart.Store plus the session user binding.
type Sessions struct{ s *Store }

func (r *Sessions) get(id string) *session {
	sess, ok := r.s.sessions[id]
	if !ok {
		sess = &session{}
		r.s.sessions[id] = sess
	}
	return sess
}

func (r *Sessions) Cart(_ context.Context, sessionID string) ([]cart.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.get(sessionID).lines), nil
}

func (r *Sessions) SetCart(_ context.Context, sessionID string, lines []cart.Line) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.get(sessionID).lines = slices.Clone(lines)
	return nil
}

func (r *Sessions) AppliedDiscount(_ context.Context, sessionID string) (*discount.Applied, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a := r.get(sessionID).applied
	if a == nil {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (r *Sessions) SetAppliedDiscount(_ context.Context, sessionID string, a *discount.Applied) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a == nil {
		r.get(sessionID).applied = nil
		return nil
	}
	c := *a
	r.get(sessionID).applied = &c
	return nil
}

func (r *Sessions) Clear(_ context.Context, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess := r.get(sessionID)
	sess.lines = nil
	sess.applied = nil
	return nil
}

// UserID returns the user bound to the session, or "" for guests.
func (r *Sessions) UserID(_ context.Context, sessionID string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(sessionID).userID, nil
}

// SetUserID binds the session to a user.
func (r *Sessions) SetUserID(_ context.Context, sessionID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.get(sessionID).userID = userID
	return nil
}

// APIKeys implements auth.Repository.
type APIKeys struct{ s *Store }

func (r *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.apiKeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	c := *k
	return &c, nil
}
