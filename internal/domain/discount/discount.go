package discount

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage takes value percent off the subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed takes a fixed amount off the subtotal.
	TypeFixed Type = "fixed"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypePercentage || t == TypeFixed
}

var (
	// ErrInvalidCode is returned when no active discount matches the code.
	ErrInvalidCode = errors.New("invalid discount code")
	// ErrOutsideWindow is returned when now falls outside [StartDate, EndDate].
	ErrOutsideWindow = errors.New("discount code is not valid at this time")
	// ErrUsageLimitReached is returned when a discount has exhausted its uses.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
	// ErrCodeExists is returned when creating a discount whose code is taken.
	ErrCodeExists = errors.New("discount code already exists")
	// ErrInvalidDefinition is returned when an admin-supplied discount is malformed.
	ErrInvalidDefinition = errors.New("invalid discount definition")
)

// MinimumNotMetError indicates the subtotal is below the discount's minimum order value.
type MinimumNotMetError struct {
	Minimum decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("order must be at least %s to use this code", e.Minimum.StringFixed(0))
}

// Discount is a discount code definition together with its usage counter.
type Discount struct {
	ID            string
	Code          string
	Description   string
	Type          Type
	Value         decimal.Decimal
	MinOrderValue decimal.Decimal
	MaxDiscount   decimal.NullDecimal
	UsageLimit    *int
	UsedCount     int
	StartDate     time.Time
	EndDate       time.Time
	Active        bool
	CreatedAt     time.Time
}

// Normalize canonicalises a user-supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Exhausted reports whether the usage counter has reached the limit.
func (d *Discount) Exhausted() bool {
	return d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit
}

// Validate checks that d can be used at now for an order of the given subtotal.
func (d *Discount) Validate(now time.Time, subtotal decimal.Decimal) error {
	if !d.Active {
		return ErrInvalidCode
	}
	if now.Before(d.StartDate) || now.After(d.EndDate) {
		return ErrOutsideWindow
	}
	if d.Exhausted() {
		return ErrUsageLimitReached
	}
	if subtotal.LessThan(d.MinOrderValue) {
		return &MinimumNotMetError{Minimum: d.MinOrderValue}
	}
	return nil
}

// Check validates an admin-supplied definition and normalises its code.
func (d *Discount) Check() error {
	d.Code = Normalize(d.Code)
	switch {
	case d.Code == "":
		return errors.Wrap(ErrInvalidDefinition, "code is required")
	case !d.Type.Valid():
		return errors.Wrapf(ErrInvalidDefinition, "unknown type %q", d.Type)
	case !d.Value.IsPositive():
		return errors.Wrap(ErrInvalidDefinition, "value must be positive")
	case d.Type == TypePercentage && d.Value.GreaterThan(hundred):
		return errors.Wrap(ErrInvalidDefinition, "percentage cannot exceed 100")
	case d.MinOrderValue.IsNegative():
		return errors.Wrap(ErrInvalidDefinition, "minimum order value cannot be negative")
	case d.UsageLimit != nil && *d.UsageLimit < 1:
		return errors.Wrap(ErrInvalidDefinition, "usage limit must be at least 1")
	case !d.EndDate.After(d.StartDate):
		return errors.Wrap(ErrInvalidDefinition, "end date must be after start date")
	}
	return nil
}

// Applied returns the descriptor stored in the visitor session.
func (d *Discount) Applied() Applied {
	return Applied{
		Code:        d.Code,
		Type:        d.Type,
		Value:       d.Value,
		MaxDiscount: d.MaxDiscount,
	}
}

// Repository provides lookup and mutation of discount definitions.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Discount, error)
	Create(ctx context.Context, d *Discount) error
	List(ctx context.Context) ([]Discount, error)
}

// Counter increments a discount's usage counter. It is only reached
// through the order finalization fence.
type Counter interface {
	IncrementUsed(ctx context.Context, code string) error
}
