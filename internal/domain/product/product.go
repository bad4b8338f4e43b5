package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PageSize is the number of products returned per catalog page.
const PageSize = 6

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrOutOfStock is returned when a product cannot cover the requested quantity.
	ErrOutOfStock = errors.New("product out of stock")
)

// ShortageError reports a stock decrement that would drive a product below zero.
type ShortageError struct {
	ProductID string
	Requested int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d", e.ProductID, e.Requested)
}

// Unwrap lets callers match a shortage with errors.Is(err, ErrOutOfStock).
func (e *ShortageError) Unwrap() error { return ErrOutOfStock }

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  string
	Image       string
	Stock       int
	Rating      float64
	ReviewCount int
	CreatedAt   time.Time
}

// InStock reports whether qty units can be sold.
func (p *Product) InStock(qty int) bool {
	return p.Stock > 0 && qty <= p.Stock
}

// Category groups products in the catalog.
type Category struct {
	ID          string
	Name        string
	Description string
}

// Filter narrows a catalog listing. Page is 1-based.
type Filter struct {
	Search     string
	CategoryID string
	Page       int
}

// Offset returns the row offset of the filter's page.
func (f Filter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * PageSize
}

// Pages returns the number of pages needed for total products.
func Pages(total int) int {
	return (total + PageSize - 1) / PageSize
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, int, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Categories(ctx context.Context) ([]Category, error)
}

// Inventory applies stock changes. DecrementStock must be conditional:
// it fails with a *ShortageError instead of driving stock negative.
type Inventory interface {
	DecrementStock(ctx context.Context, productID string, qty int) error
}
