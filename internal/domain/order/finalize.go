package order

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/bakery-shop/internal/domain/product"
)

// Finalization outcomes recorded on the bakery.order.finalizations counter.
const (
	// OutcomeWon is the call that performed the paid transition.
	OutcomeWon = "won"
	// OutcomeLost found the order already paid and settled.
	OutcomeLost = "lost"
	// OutcomeConverged found the order paid and completed its pending side effects.
	OutcomeConverged = "converged"
	// OutcomeShortage failed to deduct stock for a paid order.
	OutcomeShortage = "shortage"
	// OutcomeRejected found the order cancelled.
	OutcomeRejected = "rejected"
	// OutcomeError failed on storage.
	OutcomeError = "error"
)

// Engine applies the one-time consequences of payment: the paid
// transition, stock deduction and discount usage. Every operation is
// idempotent and safe to call concurrently for the same order.
type Engine struct {
	orders    Repository
	tx        Transactor
	events    Publisher
	finalized metric.Int64Counter
	now       func() time.Time
}

// NewEngine creates an Engine that counts finalizations on meter. A nil
// publisher drops events.
func NewEngine(orders Repository, tx Transactor, events Publisher, meter metric.Meter) (*Engine, error) {
	if events == nil {
		events = NopPublisher()
	}
	finalized, err := meter.Int64Counter("bakery.order.finalizations",
		metric.WithDescription("Paid order finalizations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create finalization counter")
	}
	return &Engine{
		orders:    orders,
		tx:        tx,
		events:    events,
		finalized: finalized,
		now:       time.Now,
	}, nil
}

// DeductStockIfNeeded decrements stock for every line of o exactly once.
// The fence and the decrements commit together; a shortage rolls both
// back and is returned as a *product.ShortageError.
func (e *Engine) DeductStockIfNeeded(ctx context.Context, o *Order) error {
	if o.StockDeducted {
		return nil
	}

	err := e.tx.InTx(ctx, func(ctx context.Context, s Settlement) error {
		claimed, err := s.ClaimStockDeduction(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "claim stock deduction")
		}
		if !claimed {
			return nil
		}
		// A fixed product order keeps concurrent settlements from taking
		// row locks in opposite orders.
		items := slices.SortedFunc(slices.Values(o.Items), func(a, b Item) int {
			return strings.Compare(a.ProductID, b.ProductID)
		})
		for _, it := range items {
			if err := s.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return errors.Wrapf(err, "decrement stock of %s", it.ProductID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.StockDeducted = true
	return nil
}

// MarkDiscountUsedIfNeeded increments the usage counter of the order's
// discount code exactly once. Orders without a code are left alone.
func (e *Engine) MarkDiscountUsedIfNeeded(ctx context.Context, o *Order) error {
	if o.DiscountCode == "" || o.DiscountUsed {
		return nil
	}

	err := e.tx.InTx(ctx, func(ctx context.Context, s Settlement) error {
		claimed, err := s.ClaimDiscountUsage(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "claim discount usage")
		}
		if !claimed {
			return nil
		}
		// The usage limit was checked at apply time only; concurrent
		// checkouts can push UsedCount past UsageLimit here.
		if err := s.IncrementUsed(ctx, o.DiscountCode); err != nil {
			return errors.Wrapf(err, "increment usage of %s", o.DiscountCode)
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.DiscountUsed = true
	return nil
}

// FinalizePaidOrder marks o paid and applies its side effects. The paid
// transition is a compare-and-set: exactly one caller stamps its payment
// reference. Losers observe the stored order and return it unchanged once
// it is settled. Every caller converges the fences, so an order left paid
// but not yet deducted is repaired by calling FinalizePaidOrder again.
// Cancelled orders are never marked paid; they yield ErrCancelled.
func (e *Engine) FinalizePaidOrder(ctx context.Context, o *Order, p Payment) (_ *Order, err error) {
	outcome := OutcomeLost
	defer func() {
		switch {
		case errors.Is(err, product.ErrOutOfStock):
			outcome = OutcomeShortage
		case errors.Is(err, ErrCancelled):
			outcome = OutcomeRejected
		case err != nil:
			outcome = OutcomeError
		}
		e.finalized.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	if o.Settled() {
		return o, nil
	}
	if p.Status == "" {
		p.Status = StatusConfirmed
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = e.now()
	}

	won, err := e.orders.MarkPaid(ctx, o.ID, p)
	if err != nil {
		return nil, errors.Wrap(err, "mark paid")
	}

	var cur Order
	if won {
		outcome = OutcomeWon
		cur = *o
		cur.PaymentStatus = PaymentPaid
		cur.PaymentRef = p.Ref
		cur.PaymentMessage = p.Message
		paidAt := p.PaidAt
		cur.PaidAt = &paidAt
		if cur.Status == StatusPending {
			cur.Status = p.Status
		}
	} else {
		stored, err := e.orders.Get(ctx, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "reload order")
		}
		if stored.PaymentStatus != PaymentPaid {
			if stored.Status == StatusCancelled {
				return nil, errors.Wrapf(ErrCancelled, "order %s", o.ID)
			}
			return nil, errors.Errorf("order %s: payment status %q after lost paid transition", o.ID, stored.PaymentStatus)
		}
		if stored.Settled() {
			return stored, nil
		}
		outcome = OutcomeConverged
		cur = *stored
	}

	lg := zctx.From(ctx).With(zap.String("order_id", cur.ID))
	if won {
		lg.Info("Order paid",
			zap.String("payment_ref", cur.PaymentRef),
			zap.String("method", string(cur.PaymentMethod)),
			zap.String("final_price", cur.FinalPrice.String()),
		)
		if err := e.events.Publish(ctx, newEvent(EventOrderPaid, &cur, p.PaidAt)); err != nil {
			lg.Warn("Publish order paid event", zap.Error(err))
		}
	}
	if err := e.DeductStockIfNeeded(ctx, &cur); err != nil {
		lg.Error("Stock deduction failed for paid order", zap.Error(err))
		return nil, errors.Wrap(err, "deduct stock")
	}
	if err := e.MarkDiscountUsedIfNeeded(ctx, &cur); err != nil {
		lg.Error("Discount usage failed for paid order", zap.Error(err))
		return nil, errors.Wrap(err, "mark discount used")
	}

	return &cur, nil
}

// RecordPaymentFailure marks o failed unless it is already paid. It
// reports whether the failure was recorded.
func (e *Engine) RecordPaymentFailure(ctx context.Context, o *Order, message string) (bool, error) {
	ok, err := e.orders.MarkFailed(ctx, o.ID, message)
	if err != nil {
		return false, errors.Wrap(err, "mark failed")
	}
	if !ok {
		return false, nil
	}

	o.PaymentStatus = PaymentFailed
	o.PaymentMessage = message
	if err := e.events.Publish(ctx, newEvent(EventPaymentFailed, o, e.now())); err != nil {
		zctx.From(ctx).Warn("Publish payment failed event", zap.String("order_id", o.ID), zap.Error(err))
	}
	return true, nil
}
