package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types published on order state changes.
const (
	EventOrderPaid     = "OrderPaid"
	EventPaymentFailed = "PaymentFailed"
	EventStatusChanged = "OrderStatusChanged"
)

// Event describes an order state change for downstream consumers.
type Event struct {
	Type          string
	OrderID       string
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	PaymentRef    string
	FinalPrice    decimal.Decimal
	Message       string
	OccurredAt    time.Time
}

// Publisher delivers order events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// NopPublisher returns a Publisher that drops every event.
func NopPublisher() Publisher { return nopPublisher{} }

func newEvent(typ string, o *Order, at time.Time) Event {
	return Event{
		Type:          typ,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentRef:    o.PaymentRef,
		FinalPrice:    o.FinalPrice,
		Message:       o.PaymentMessage,
		OccurredAt:    at,
	}
}
