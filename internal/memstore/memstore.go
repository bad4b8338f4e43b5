// Package memstore provides in-memory implementations of the storefront
// repositories. Conditional updates and transactions behave like their
// PostgreSQL counterparts, which makes the store suitable for exercising
// concurrent finalization in tests.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/xenking/bakery-shop/internal/domain/auth"
	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/review"
	"github.com/xenking/bakery-shop/internal/domain/user"
	"github.com/xenking/bakery-shop/internal/domain/wishlist"
)

type session struct {
	lines   []cart.Line
	applied *discount.Applied
	userID  string
}

// Store holds all state behind a single mutex. txMu serializes
// transactions the way row locks serialize conflicting PostgreSQL writers.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	products   map[string]*product.Product
	categories []product.Category
	discounts  map[string]*discount.Discount
	orders     map[string]*order.Order
	users      map[string]*user.User
	reviews    []review.Review
	wishlists  map[string][]string
	sessions   map[string]*session
	apiKeys    map[string]*auth.APIKeyInfo
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		products:  make(map[string]*product.Product),
		discounts: make(map[string]*discount.Discount),
		orders:    make(map[string]*order.Order),
		users:     make(map[string]*user.User),
		wishlists: make(map[string][]string),
		sessions:  make(map[string]*session),
		apiKeys:   make(map[string]*auth.APIKeyInfo),
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

// PutCategory appends a category.
func (s *Store) PutCategory(c product.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

// PutDiscount inserts or replaces a discount keyed by its code.
func (s *Store) PutDiscount(d discount.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discounts[d.Code] = &d
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// PutOrder inserts or replaces an order.
func (s *Store) PutOrder(o order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(&o)
}

// PutAPIKey registers an API key under its hash.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[k.KeyHash] = &k
}

// Product returns a copy of the stored product.
func (s *Store) Product(id string) product.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.products[id]
}

// Discount returns a copy of the stored discount.
func (s *Store) Discount(code string) discount.Discount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.discounts[code]
}

// Order returns a copy of the stored order.
func (s *Store) Order(id string) order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *cloneOrder(s.orders[id])
}

// User returns a copy of the stored user.
func (s *Store) User(id string) user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// Products returns the catalog view.
func (s *Store) Products() *Products { return &Products{s: s} }

// Discounts returns the discount view.
func (s *Store) Discounts() *Discounts { return &Discounts{s: s} }

// Orders returns the order view. It also implements order.Transactor.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Users returns the user view.
func (s *Store) Users() *Users { return &Users{s: s} }

// Reviews returns the review view.
func (s *Store) Reviews() *Reviews { return &Reviews{s: s} }

// Wishlists returns the wishlist view.
func (s *Store) Wishlists() *Wishlists { return &Wishlists{s: s} }

// Sessions returns the session view.
func (s *Store) Sessions() *Sessions { return &Sessions{s: s} }

// APIKeys returns the API key view.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

var (
	_ product.Repository  = (*Products)(nil)
	_ discount.Repository = (*Discounts)(nil)
	_ order.Repository    = (*Orders)(nil)
	_ order.Transactor    = (*Orders)(nil)
	_ user.Repository     = (*Users)(nil)
	_ review.Repository   = (*Reviews)(nil)
	_ cart.Store          = (*Sessions)(nil)
	_ auth.Repository     = (*APIKeys)(nil)
	_ wishlist.Repository = (*Wishlists)(nil)
)

// Products implements product.Repository.
type Products struct{ s *Store }

func (r *Products) List(_ context.Context, f product.Filter) ([]product.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []product.Product
	for _, p := range r.s.products {
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	total := len(out)
	start := min(f.Offset(), total)
	end := min(start+product.PageSize, total)
	return out[start:end], total, nil
}

func (r *Products) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *Products) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *Products) Categories(context.Context) ([]product.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.categories), nil
}

// Discounts implements discount.Repository.
type Discounts struct{ s *Store }

func (r *Discounts) FindByCode(_ context.Context, code string) (*discount.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.discounts[discount.Normalize(code)]
	if !ok || !d.Active {
		return nil, discount.ErrInvalidCode
	}
	c := *d
	return &c, nil
}

func (r *Discounts) Create(_ context.Context, d *discount.Discount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.discounts[d.Code]; ok {
		return discount.ErrCodeExists
	}
	c := *d
	r.s.discounts[d.Code] = &c
	return nil
}

func (r *Discounts) List(context.Context) ([]discount.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]discount.Discount, 0, len(r.s.discounts))
	for _, d := range r.s.discounts {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
