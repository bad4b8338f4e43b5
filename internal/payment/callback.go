package payment

import (
	"context"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/bakery-shop/internal/domain/order"
)

// Code is the acknowledgement returned to the gateway's notification call.
type Code string

const (
	CodeSuccess          Code = "00"
	CodeOrderNotFound    Code = "01"
	CodeAlreadyPaid      Code = "02"
	CodeWrongMethod      Code = "03"
	CodeInvalidAmount    Code = "04"
	CodeInvalidSignature Code = "97"
	CodeUnknown          Code = "99"
)

var codeMessages = map[Code]string{
	CodeSuccess:          "Confirm success",
	CodeOrderNotFound:    "Order not found",
	CodeAlreadyPaid:      "Order already confirmed",
	CodeWrongMethod:      "Invalid payment method",
	CodeInvalidAmount:    "Invalid amount",
	CodeInvalidSignature: "Invalid signature",
	CodeUnknown:          "Unknown error",
}

// Message returns the human readable acknowledgement for c.
func (c Code) Message() string {
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return codeMessages[CodeUnknown]
}

// Callback sources.
const (
	SourceReturn = "return"
	SourceNotify = "ipn"
)

// Outcome is the result of processing one callback.
type Outcome struct {
	Code  Code
	Order *order.Order
	// Paid reports whether the order is paid after processing.
	Paid bool
	// GatewayCode is the gateway's own response code.
	GatewayCode string
}

// Orders loads orders referenced by callbacks.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// Finalizer applies payment outcomes to orders.
type Finalizer interface {
	FinalizePaidOrder(ctx context.Context, o *order.Order, p order.Payment) (*order.Order, error)
	RecordPaymentFailure(ctx context.Context, o *order.Order, message string) (bool, error)
}

// Processor verifies gateway callbacks and reconciles them with orders.
// The return redirect and the notification share it, so either may
// arrive first and both may be repeated.
type Processor struct {
	gw       *Gateway
	orders   Orders
	fin      Finalizer
	outcomes metric.Int64Counter
}

// NewProcessor creates a Processor that records outcomes on meter.
func NewProcessor(gw *Gateway, orders Orders, fin Finalizer, meter metric.Meter) (*Processor, error) {
	outcomes, err := meter.Int64Counter("bakery.payment.callbacks",
		metric.WithDescription("Payment gateway callbacks by source and outcome code"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create callback counter")
	}
	return &Processor{gw: gw, orders: orders, fin: fin, outcomes: outcomes}, nil
}

// Process handles one callback. Integrity failures are reported through
// the outcome code and never mutate the order. The returned error is set
// only together with CodeUnknown.
func (p *Processor) Process(ctx context.Context, source string, params url.Values) (Outcome, error) {
	out, err := p.process(ctx, params)
	if err != nil {
		out.Code = CodeUnknown
	}
	p.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("code", string(out.Code)),
	))
	return out, err
}

func (p *Processor) process(ctx context.Context, params url.Values) (Outcome, error) {
	lg := zctx.From(ctx).With(zap.String("txn_ref", params.Get(FieldTxnRef)))
	gatewayCode := params.Get(FieldResponseCode)

	if err := p.gw.Verify(params); err != nil {
		lg.Warn("Rejected payment callback", zap.Error(err))
		return Outcome{Code: CodeInvalidSignature, GatewayCode: gatewayCode}, nil
	}

	o, err := p.orders.Get(ctx, params.Get(FieldTxnRef))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			lg.Warn("Payment callback for unknown order")
			return Outcome{Code: CodeOrderNotFound, GatewayCode: gatewayCode}, nil
		}
		return Outcome{GatewayCode: gatewayCode}, errors.Wrap(err, "get order")
	}
	out := Outcome{Order: o, Paid: o.PaymentStatus == order.PaymentPaid, GatewayCode: gatewayCode}

	if o.PaymentMethod != order.MethodGateway {
		lg.Warn("Payment callback for non-gateway order", zap.String("method", string(o.PaymentMethod)))
		out.Code = CodeWrongMethod
		return out, nil
	}

	amount, err := strconv.ParseInt(params.Get(FieldAmount), 10, 64)
	if err != nil || amount != MinorUnits(o.FinalPrice) {
		lg.Warn("Payment callback amount mismatch",
			zap.String("amount", params.Get(FieldAmount)),
			zap.Int64("expected", MinorUnits(o.FinalPrice)),
		)
		out.Code = CodeInvalidAmount
		return out, nil
	}

	if o.PaymentStatus == order.PaymentPaid {
		if !o.Settled() {
			// Repeated delivery converges a paid order whose side effects
			// did not complete earlier.
			if out.Order, err = p.fin.FinalizePaidOrder(ctx, o, order.Payment{}); err != nil {
				return out, errors.Wrap(err, "converge paid order")
			}
		}
		out.Code = CodeAlreadyPaid
		return out, nil
	}

	if gatewayCode == ResponseSuccess {
		paid, err := p.fin.FinalizePaidOrder(ctx, o, order.Payment{
			Ref:     params.Get(FieldTransactionNo),
			Message: "paid via gateway, bank " + params.Get(FieldBankCode),
		})
		if errors.Is(err, order.ErrCancelled) {
			// Acknowledged so the gateway stops retrying; the money is
			// returned by a manual refund.
			lg.Error("Payment received for cancelled order, refund required",
				zap.String("transaction_no", params.Get(FieldTransactionNo)),
			)
			out.Code = CodeSuccess
			return out, nil
		}
		if err != nil {
			return out, errors.Wrap(err, "finalize order")
		}
		out.Order = paid
		out.Paid = true
		out.Code = CodeSuccess
		return out, nil
	}

	recorded, err := p.fin.RecordPaymentFailure(ctx, o, "payment failed: "+gatewayCode)
	if err != nil {
		return out, errors.Wrap(err, "record payment failure")
	}
	if !recorded {
		// Paid concurrently by another callback.
		out.Code = CodeAlreadyPaid
		out.Paid = true
		return out, nil
	}
	lg.Info("Payment failed", zap.String("gateway_code", gatewayCode))
	out.Code = CodeSuccess
	return out, nil
}
