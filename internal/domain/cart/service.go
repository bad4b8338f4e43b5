package cart

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/product"
)

// Service implements the session cart on top of a Store.
type Service struct {
	store    Store
	products product.Repository
	ledger   *discount.Ledger
}

// NewService creates a cart Service.
func NewService(store Store, products product.Repository, ledger *discount.Ledger) *Service {
	return &Service{
		store:    store,
		products: products,
		ledger:   ledger,
	}
}

// Add puts qty units of productID in the cart, merging with an existing
// line. The combined quantity must be covered by current stock.
func (s *Service) Add(ctx context.Context, sessionID, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	lines, err := s.store.Cart(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	_, idx, found := lo.FindIndexOf(lines, func(l Line) bool { return l.ProductID == productID })
	want := qty
	if found {
		want += lines[idx].Quantity
	}
	if !p.InStock(want) {
		return &product.ShortageError{ProductID: productID, Requested: want}
	}

	if found {
		lines[idx].Quantity = want
	} else {
		lines = append(lines, Line{ProductID: productID, Quantity: qty})
	}
	return s.store.SetCart(ctx, sessionID, lines)
}

// Update sets the quantity of a line. A quantity of zero or less removes it.
func (s *Service) Update(ctx context.Context, sessionID, productID string, qty int) error {
	if qty <= 0 {
		return s.Remove(ctx, sessionID, productID)
	}

	lines, err := s.store.Cart(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	_, idx, ok := lo.FindIndexOf(lines, func(l Line) bool { return l.ProductID == productID })
	if !ok {
		return ErrNotInCart
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if !p.InStock(qty) {
		return &product.ShortageError{ProductID: productID, Requested: qty}
	}

	lines[idx].Quantity = qty
	return s.store.SetCart(ctx, sessionID, lines)
}

// Remove drops a product from the cart. Removing an absent product is a no-op.
func (s *Service) Remove(ctx context.Context, sessionID, productID string) error {
	lines, err := s.store.Cart(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	kept := lo.Reject(lines, func(l Line, _ int) bool { return l.ProductID == productID })
	if len(kept) == len(lines) {
		return nil
	}
	return s.store.SetCart(ctx, sessionID, kept)
}

// View prices the cart with current catalog prices and the applied discount.
// Lines whose product no longer exists are omitted.
func (s *Service) View(ctx context.Context, sessionID string) (*View, error) {
	lines, err := s.store.Cart(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	v := &View{Subtotal: decimal.Zero, Discount: decimal.Zero, Total: decimal.Zero}
	if len(lines) > 0 {
		ids := lo.Map(lines, func(l Line, _ int) string { return l.ProductID })
		fetched, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("get products: %w", err)
		}
		byID := lo.KeyBy(fetched, func(p product.Product) string { return p.ID })

		for _, l := range lines {
			p, ok := byID[l.ProductID]
			if !ok {
				continue
			}
			sub := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			v.Lines = append(v.Lines, ViewLine{Product: p, Quantity: l.Quantity, Subtotal: sub})
			v.Subtotal = v.Subtotal.Add(sub)
		}
	}

	applied, err := s.store.AppliedDiscount(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load applied discount: %w", err)
	}
	if applied != nil {
		v.Applied = applied
		v.Discount = applied.Amount(v.Subtotal)
	}
	v.Total = decimal.Max(v.Subtotal.Sub(v.Discount), decimal.Zero)
	return v, nil
}

// ApplyDiscount validates code against the cart subtotal and remembers the
// descriptor in the session. The ledger's usage counter is not touched.
func (s *Service) ApplyDiscount(ctx context.Context, sessionID, code string) (*discount.Preview, error) {
	v, err := s.View(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(v.Lines) == 0 {
		return nil, ErrEmpty
	}

	preview, err := s.ledger.Apply(ctx, code, v.Subtotal)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetAppliedDiscount(ctx, sessionID, &preview.Applied); err != nil {
		return nil, fmt.Errorf("store applied discount: %w", err)
	}
	return preview, nil
}

// RemoveDiscount forgets the applied discount.
func (s *Service) RemoveDiscount(ctx context.Context, sessionID string) error {
	return s.store.SetAppliedDiscount(ctx, sessionID, nil)
}
