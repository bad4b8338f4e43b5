package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/user"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart       = fmt.Errorf("cart is empty")
	ErrMissingShipping = fmt.Errorf("name, phone and address are required")
)

// ProductNotFoundError indicates a cart line references a missing product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a cart line has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// CheckoutRequest holds the input for placing an order from a session cart.
type CheckoutRequest struct {
	UserID    string
	SessionID string
	Shipping  Shipping
	Method    PaymentMethod
}

// Service encapsulates checkout and order queries.
type Service struct {
	products product.Repository
	carts    cart.Store
	users    user.Repository
	orders   Repository
	engine   *Engine
	events   Publisher
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	carts cart.Store,
	users user.Repository,
	orders Repository,
	engine *Engine,
	events Publisher,
) *Service {
	if events == nil {
		events = NopPublisher()
	}
	return &Service{
		products: products,
		carts:    carts,
		users:    users,
		orders:   orders,
		engine:   engine,
		events:   events,
		now:      time.Now,
	}
}

// Checkout turns the session cart into an order priced with current
// catalog prices and the session's applied discount. Cash orders are
// finalized immediately and the session is cleared; gateway orders stay
// pending until the payment callback arrives.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	ship := Shipping{
		Name:    strings.TrimSpace(req.Shipping.Name),
		Phone:   strings.TrimSpace(req.Shipping.Phone),
		Address: strings.TrimSpace(req.Shipping.Address),
	}
	if ship.Name == "" || ship.Phone == "" || ship.Address == "" {
		return nil, ErrMissingShipping
	}

	lines, err := s.carts.Cart(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID}
		}
	}

	// Batch fetch all products in a single query.
	ids := lo.Map(lines, func(l cart.Line, _ int) string { return l.ProductID })
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := lo.KeyBy(fetched, func(p product.Product) string { return p.ID })

	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		if !p.InStock(l.Quantity) {
			return nil, &product.ShortageError{ProductID: p.ID, Requested: l.Quantity}
		}
		items = append(items, Item{ProductID: p.ID, Quantity: l.Quantity, Price: p.Price})
	}

	applied, err := s.carts.AppliedDiscount(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load applied discount: %w", err)
	}
	totals := Price(items, applied)

	if err := s.users.UpdateContact(ctx, req.UserID, user.Contact{
		Name:    ship.Name,
		Phone:   ship.Phone,
		Address: ship.Address,
	}); err != nil {
		return nil, fmt.Errorf("update shipping info: %w", err)
	}

	o := &Order{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Items:          items,
		TotalPrice:     totals.Total,
		DiscountCode:   totals.DiscountCode,
		DiscountAmount: totals.DiscountAmount,
		FinalPrice:     totals.Final,
		PaymentMethod:  req.Method,
		PaymentStatus:  PaymentPending,
		Status:         StatusPending,
		Shipping:       ship,
		CreatedAt:      s.now(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("method", string(o.PaymentMethod)),
		zap.String("final_price", o.FinalPrice.String()),
	)

	if o.PaymentMethod != MethodCOD {
		return o, nil
	}

	// Nothing re-delivers a cash order, so stock is taken before it is
	// marked paid. A shortage cancels the order instead of leaving it paid
	// and undeducted; the cart is kept for the customer to adjust.
	if err := s.engine.DeductStockIfNeeded(ctx, o); err != nil {
		if errors.Is(err, product.ErrOutOfStock) {
			s.cancelUnfulfillable(ctx, o, err)
		}
		return nil, fmt.Errorf("reserve stock for cash order: %w", err)
	}
	paid, err := s.engine.FinalizePaidOrder(ctx, o, Payment{Message: "cash on delivery"})
	if err != nil {
		return nil, fmt.Errorf("finalize cash order: %w", err)
	}
	if err := s.carts.Clear(ctx, req.SessionID); err != nil {
		return nil, fmt.Errorf("clear session: %w", err)
	}
	return paid, nil
}

// cancelUnfulfillable moves a freshly placed order whose stock ran out to
// failed payment and cancelled fulfillment. Failures are logged only: the
// shortage is what the caller reports.
func (s *Service) cancelUnfulfillable(ctx context.Context, o *Order, cause error) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	lg.Warn("Cancelling order with insufficient stock", zap.Error(cause))

	if _, err := s.engine.RecordPaymentFailure(ctx, o, "cancelled: insufficient stock"); err != nil {
		lg.Error("Record failure of cancelled order", zap.Error(err))
	}
	ok, err := s.orders.UpdateStatus(ctx, o.ID, StatusPending, StatusCancelled)
	if err != nil {
		lg.Error("Cancel order", zap.Error(err))
		return
	}
	if !ok {
		lg.Warn("Order left pending state before cancellation")
		return
	}
	o.Status = StatusCancelled
	if err := s.events.Publish(ctx, newEvent(EventStatusChanged, o, s.now())); err != nil {
		lg.Warn("Publish status changed event", zap.Error(err))
	}
}

// Get returns the order id owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// List returns orders for the back office.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	return s.orders.List(ctx, f)
}

// UpdateStatus moves an order's fulfillment status through the state
// machine. A concurrent change between read and write yields ErrStatusConflict.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == to {
		return o, nil
	}
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, to)
	}

	ok, err := s.orders.UpdateStatus(ctx, id, o.Status, to)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return nil, ErrStatusConflict
	}

	o.Status = to
	if err := s.events.Publish(ctx, newEvent(EventStatusChanged, o, s.now())); err != nil {
		zctx.From(ctx).Warn("Publish status changed event", zap.String("order_id", id), zap.Error(err))
	}
	return o, nil
}
