package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/bakery-shop/internal/domain/order"
)

const (
	// Window is how long after an order is placed its products can be reviewed.
	Window = 7 * 24 * time.Hour

	maxCommentRunes = 2000
)

var (
	ErrNotDelivered    = errors.New("order has not been delivered")
	ErrAlreadyReviewed = errors.New("product already reviewed for this order")
	ErrWindowClosed    = errors.New("review window has closed")
	ErrNotInOrder      = errors.New("product is not part of this order")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrDuplicate       = errors.New("duplicate review")
	ErrOrderNotFound   = errors.New("order not found")
	ErrCommentTooLong  = errors.New("comment is too long")
)

// Review is a customer's rating of a product bought in an order.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	UserName  string
	OrderID   string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Repository persists reviews. Create also recomputes the product's
// rating average and review count in the same transaction and returns
// ErrDuplicate when the (user, product, order) triple already exists.
type Repository interface {
	Exists(ctx context.Context, userID, productID, orderID string) (bool, error)
	Create(ctx context.Context, r *Review) error
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
}

// Eligible checks whether productID of o can be reviewed at now.
// reviewed reports whether a review for the triple already exists.
func Eligible(o *order.Order, productID string, reviewed bool, now time.Time) error {
	switch {
	case !o.Contains(productID):
		return ErrNotInOrder
	case o.Status != order.StatusDelivered:
		return ErrNotDelivered
	case reviewed:
		return ErrAlreadyReviewed
	case now.Sub(o.CreatedAt) > Window:
		return ErrWindowClosed
	}
	return nil
}

// Input is a review submission.
type Input struct {
	UserID    string
	ProductID string
	OrderID   string
	Rating    int
	Comment   string
}

// Service implements review eligibility and submission.
type Service struct {
	reviews Repository
	orders  order.Repository
	now     func() time.Time
}

// NewService creates a review Service.
func NewService(reviews Repository, orders order.Repository) *Service {
	return &Service{reviews: reviews, orders: orders, now: time.Now}
}

// CanReview reports, as an error, why the user cannot review productID
// from orderID. A nil error means the review is allowed.
func (s *Service) CanReview(ctx context.Context, userID, productID, orderID string) error {
	o, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}
	reviewed, err := s.reviews.Exists(ctx, userID, productID, orderID)
	if err != nil {
		return fmt.Errorf("check existing review: %w", err)
	}
	return Eligible(o, productID, reviewed, s.now())
}

// Reviewable returns, per product of o, whether the user may review it now.
func (s *Service) Reviewable(ctx context.Context, o *order.Order) (map[string]bool, error) {
	out := make(map[string]bool, len(o.Items))
	now := s.now()
	for _, it := range o.Items {
		reviewed, err := s.reviews.Exists(ctx, o.UserID, it.ProductID, o.ID)
		if err != nil {
			return nil, fmt.Errorf("check existing review: %w", err)
		}
		out[it.ProductID] = Eligible(o, it.ProductID, reviewed, now) == nil
	}
	return out, nil
}

// Create validates and stores a review.
func (s *Service) Create(ctx context.Context, in Input) (*Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}
	comment := strings.TrimSpace(in.Comment)
	if len([]rune(comment)) > maxCommentRunes {
		return nil, ErrCommentTooLong
	}
	if err := s.CanReview(ctx, in.UserID, in.ProductID, in.OrderID); err != nil {
		return nil, err
	}

	r := &Review{
		ID:        uuid.New().String(),
		ProductID: in.ProductID,
		UserID:    in.UserID,
		OrderID:   in.OrderID,
		Rating:    in.Rating,
		Comment:   comment,
		CreatedAt: s.now(),
	}
	if err := s.reviews.Create(ctx, r); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("create review: %w", err)
	}
	return r, nil
}

// ListByProduct returns a product's reviews, newest first.
func (s *Service) ListByProduct(ctx context.Context, productID string) ([]Review, error) {
	return s.reviews.ListByProduct(ctx, productID)
}

func (s *Service) ownedOrder(ctx context.Context, userID, orderID string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}
