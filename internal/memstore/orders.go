package memstore

import (
	"context"
	"sort"

	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/internal/domain/product"
)

// Orders implements order.Repository and order.Transactor.
type Orders struct{ s *Store }

func (r *Orders) Create(_ context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *Orders) Get(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *Orders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool { return o.UserID == userID }, 0), nil
}

func (r *Orders) List(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool { return f.Status == "" || o.Status == f.Status }, f.Limit), nil
}

func (r *Orders) list(keep func(*order.Order) bool, limit int) []order.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Order
	for _, o := range r.s.orders {
		if keep(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *Orders) MarkPaid(_ context.Context, id string, p order.Payment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.PaymentStatus == order.PaymentPaid || o.Status == order.StatusCancelled {
		return false, nil
	}
	o.PaymentStatus = order.PaymentPaid
	o.PaymentRef = p.Ref
	o.PaymentMessage = p.Message
	paidAt := p.PaidAt
	o.PaidAt = &paidAt
	if o.Status == order.StatusPending {
		o.Status = p.Status
	}
	return true, nil
}

func (r *Orders) MarkFailed(_ context.Context, id, message string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.PaymentStatus == order.PaymentPaid {
		return false, nil
	}
	o.PaymentStatus = order.PaymentFailed
	o.PaymentMessage = message
	return true, nil
}

func (r *Orders) UpdateStatus(_ context.Context, id string, from, to order.Status) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

// InTx runs fn with a settlement that undoes its writes when fn fails.
func (r *Orders) InTx(ctx context.Context, fn func(ctx context.Context, s order.Settlement) error) error {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()

	st := &settlement{s: r.s}
	if err := fn(ctx, st); err != nil {
		st.rollback()
		return err
	}
	return nil
}

type settlement struct {
	s    *Store
	undo []func()
}

func (t *settlement) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *settlement) ClaimStockDeduction(_ context.Context, orderID string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[orderID]
	if !ok {
		return false, order.ErrNotFound
	}
	if o.StockDeducted {
		return false, nil
	}
	o.StockDeducted = true
	t.undo = append(t.undo, func() { o.StockDeducted = false })
	return true, nil
}

func (t *settlement) ClaimDiscountUsage(_ context.Context, orderID string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[orderID]
	if !ok {
		return false, order.ErrNotFound
	}
	if o.DiscountUsed {
		return false, nil
	}
	o.DiscountUsed = true
	t.undo = append(t.undo, func() { o.DiscountUsed = false })
	return true, nil
}

func (t *settlement) DecrementStock(_ context.Context, productID string, qty int) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock < qty {
		return &product.ShortageError{ProductID: productID, Requested: qty}
	}
	p.Stock -= qty
	t.undo = append(t.undo, func() { p.Stock += qty })
	return nil
}

func (t *settlement) IncrementUsed(_ context.Context, code string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	d, ok := t.s.discounts[code]
	if !ok {
		return discount.ErrInvalidCode
	}
	d.UsedCount++
	t.undo = append(t.undo, func() { d.UsedCount-- })
	return nil
}
