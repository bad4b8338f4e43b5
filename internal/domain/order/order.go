package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/product"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned when the order changed concurrently.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrCancelled is returned when payment arrives for a cancelled order.
	ErrCancelled = errors.New("order is cancelled")
)

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	// MethodCOD is cash on delivery.
	MethodCOD PaymentMethod = "cod"
	// MethodGateway is the online payment gateway.
	MethodGateway PaymentMethod = "vnpay"
)

// ParsePaymentMethod maps a checkout choice to a method. Anything other
// than the gateway falls back to cash on delivery.
func ParsePaymentMethod(s string) PaymentMethod {
	if PaymentMethod(s) == MethodGateway {
		return MethodGateway
	}
	return MethodCOD
}

// Item is a line of an order with the unit price captured at checkout.
type Item struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// Subtotal returns price × quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Shipping holds the delivery contact captured at checkout.
type Shipping struct {
	Name    string
	Phone   string
	Address string
}

// Order is a placed order together with its payment state and the fences
// guarding its one-time side effects.
type Order struct {
	ID             string
	UserID         string
	Items          []Item
	TotalPrice     decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	PaymentRef     string
	PaymentMessage string
	PaidAt         *time.Time
	Status         Status
	StockDeducted  bool
	DiscountUsed   bool
	Shipping       Shipping
	CreatedAt      time.Time
}

// Settled reports whether the order is paid and every side effect of
// payment has been applied.
func (o *Order) Settled() bool {
	return o.PaymentStatus == PaymentPaid &&
		o.StockDeducted &&
		(o.DiscountCode == "" || o.DiscountUsed)
}

// Contains reports whether productID is one of the order's lines.
func (o *Order) Contains(productID string) bool {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// Payment carries the outcome stamped onto an order by finalization.
// Status replaces the fulfillment status of pending orders only; orders
// already moved on by the back office keep theirs. A zero Status defaults
// to StatusConfirmed.
type Payment struct {
	Ref     string
	Message string
	PaidAt  time.Time
	Status  Status
}

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status Status
	Limit  int
}

// Repository defines persistence operations for orders. MarkPaid,
// MarkFailed and UpdateStatus are single conditional updates; they report
// whether this call performed the transition.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	MarkPaid(ctx context.Context, id string, p Payment) (bool, error)
	MarkFailed(ctx context.Context, id, message string) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)
}

// Settlement is the set of writes available inside a finalization
// transaction. Claim methods set a fence and report whether this
// transaction was the one to set it.
type Settlement interface {
	product.Inventory
	discount.Counter
	ClaimStockDeduction(ctx context.Context, orderID string) (bool, error)
	ClaimDiscountUsage(ctx context.Context, orderID string) (bool, error)
}

// Transactor runs fn inside a single database transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Settlement) error) error
}
