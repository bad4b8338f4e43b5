package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Preview is the result of applying a code to a cart subtotal.
type Preview struct {
	Applied  Applied
	Subtotal decimal.Decimal
	Amount   decimal.Decimal
}

// Total returns the subtotal after the previewed discount, floored at zero.
func (p *Preview) Total() decimal.Decimal {
	return decimal.Max(p.Subtotal.Sub(p.Amount), decimal.Zero)
}

// Ledger validates discount codes against the stored definitions.
// It never mutates usage counters.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger backed by the given Repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Apply looks up code, checks its window, usage and minimum order value
// against subtotal, and returns the previewed discount.
func (l *Ledger) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (*Preview, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	d, err := l.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup discount")
	}

	if err := d.Validate(l.now(), subtotal); err != nil {
		return nil, err
	}

	applied := d.Applied()
	return &Preview{
		Applied:  applied,
		Subtotal: subtotal,
		Amount:   applied.Amount(subtotal),
	}, nil
}

// Create validates and stores a new discount definition.
func (l *Ledger) Create(ctx context.Context, d *Discount) error {
	if err := d.Check(); err != nil {
		return err
	}
	return l.repo.Create(ctx, d)
}

// List returns every discount definition.
func (l *Ledger) List(ctx context.Context) ([]Discount, error) {
	return l.repo.List(ctx)
}
