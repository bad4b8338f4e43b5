package payment_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/memstore"
	"github.com/xenking/bakery-shop/internal/payment"
)

const secret = "SECRETKEY123"

type env struct {
	store *memstore.Store
	proc  *payment.Processor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	store.PutProduct(product.Product{ID: "cake", Name: "Cake", Price: decimal.NewFromInt(200000), Stock: 4})
	store.PutOrder(order.Order{
		ID:            "o1",
		UserID:        "u1",
		Items:         []order.Item{{ProductID: "cake", Quantity: 1, Price: decimal.NewFromInt(200000)}},
		TotalPrice:    decimal.NewFromInt(200000),
		FinalPrice:    decimal.NewFromInt(200000),
		PaymentMethod: order.MethodGateway,
		PaymentStatus: order.PaymentPending,
		Status:        order.StatusPending,
		CreatedAt:     time.Now(),
	})

	engine, err := order.NewEngine(store.Orders(), store.Orders(), nil, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return &env{store: store, proc: newProcessor(t, store.Orders(), engine)}
}

func newProcessor(t *testing.T, orders payment.Orders, fin payment.Finalizer) *payment.Processor {
	t.Helper()
	gw, err := payment.New(payment.Config{
		MerchantCode: "BAKERY01",
		Secret:       secret,
		URL:          "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		Currency:     "VND",
	})
	require.NoError(t, err)

	proc, err := payment.NewProcessor(gw, orders, fin, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return proc
}

type failingOrders struct{ err error }

func (o failingOrders) Get(context.Context, string) (*order.Order, error) { return nil, o.err }

func callback(orderID string, amount int64, code, txn string) url.Values {
	p := url.Values{
		payment.FieldTxnRef:        {orderID},
		payment.FieldAmount:        {strconv.FormatInt(amount, 10)},
		payment.FieldResponseCode:  {code},
		payment.FieldTransactionNo: {txn},
		payment.FieldBankCode:      {"NCB"},
		payment.FieldMerchant:      {"BAKERY01"},
	}
	p.Set(payment.FieldSecureHash, payment.Sign(secret, p))
	return p
}

func TestProcess_Success(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	out, err := e.proc.Process(ctx, payment.SourceNotify, callback("o1", 20000000, "00", "TXN-1"))
	require.NoError(t, err)
	assert.Equal(t, payment.CodeSuccess, out.Code)
	assert.True(t, out.Paid)

	stored := e.store.Order("o1")
	assert.Equal(t, order.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "TXN-1", stored.PaymentRef)
	assert.Equal(t, 3, e.store.Product("cake").Stock)

	// The return redirect arriving after the notification is acknowledged only.
	out, err = e.proc.Process(ctx, payment.SourceReturn, callback("o1", 20000000, "00", "TXN-1"))
	require.NoError(t, err)
	assert.Equal(t, payment.CodeAlreadyPaid, out.Code)
	assert.True(t, out.Paid)
	assert.Equal(t, 3, e.store.Product("cake").Stock)
}

func TestProcess_ConcurrentDelivery(t *testing.T) {
	e := newEnv(t)

	var g errgroup.Group
	for _, src := range []string{payment.SourceReturn, payment.SourceNotify, payment.SourceNotify} {
		g.Go(func() error {
			_, err := e.proc.Process(context.Background(), src, callback("o1", 20000000, "00", "TXN-1"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 3, e.store.Product("cake").Stock)
	settled := e.store.Order("o1")
	assert.True(t, settled.Settled())
}

func TestProcess_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("amount mismatch leaves order untouched", func(t *testing.T) {
		e := newEnv(t)
		before := e.store.Order("o1")

		out, err := e.proc.Process(ctx, payment.SourceNotify, callback("o1", 19999900, "00", "TXN-1"))
		require.NoError(t, err)
		assert.Equal(t, payment.CodeInvalidAmount, out.Code)
		assert.Equal(t, before, e.store.Order("o1"))
		assert.Equal(t, 4, e.store.Product("cake").Stock)
	})

	t.Run("bad signature", func(t *testing.T) {
		e := newEnv(t)
		p := callback("o1", 20000000, "00", "TXN-1")
		p.Set(payment.FieldTransactionNo, "TXN-FORGED")

		out, err := e.proc.Process(ctx, payment.SourceNotify, p)
		require.NoError(t, err)
		assert.Equal(t, payment.CodeInvalidSignature, out.Code)
		assert.Nil(t, out.Order)
		assert.Equal(t, order.PaymentPending, e.store.Order("o1").PaymentStatus)
	})

	t.Run("unknown order", func(t *testing.T) {
		e := newEnv(t)
		out, err := e.proc.Process(ctx, payment.SourceNotify, callback("nope", 20000000, "00", "TXN-1"))
		require.NoError(t, err)
		assert.Equal(t, payment.CodeOrderNotFound, out.Code)
	})

	t.Run("cash order", func(t *testing.T) {
		e := newEnv(t)
		o := e.store.Order("o1")
		o.PaymentMethod = order.MethodCOD
		e.store.PutOrder(o)

		out, err := e.proc.Process(ctx, payment.SourceNotify, callback("o1", 20000000, "00", "TXN-1"))
		require.NoError(t, err)
		assert.Equal(t, payment.CodeWrongMethod, out.Code)
		assert.Equal(t, order.PaymentPending, e.store.Order("o1").PaymentStatus)
	})
}

func TestProcess_Failure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	out, err := e.proc.Process(ctx, payment.SourceReturn, callback("o1", 20000000, "24", ""))
	require.NoError(t, err)
	assert.Equal(t, payment.CodeSuccess, out.Code)
	assert.False(t, out.Paid)
	assert.Equal(t, "24", out.GatewayCode)

	stored := e.store.Order("o1")
	assert.Equal(t, order.PaymentFailed, stored.PaymentStatus)
	assert.Equal(t, "payment failed: 24", stored.PaymentMessage)
	assert.Equal(t, 4, e.store.Product("cake").Stock)

	// A retry that succeeds still pays the order.
	out, err = e.proc.Process(ctx, payment.SourceNotify, callback("o1", 20000000, "00", "TXN-2"))
	require.NoError(t, err)
	assert.Equal(t, payment.CodeSuccess, out.Code)
	assert.Equal(t, order.PaymentPaid, e.store.Order("o1").PaymentStatus)

	// A late failure for a paid order is acknowledged without effect.
	out, err = e.proc.Process(ctx, payment.SourceNotify, callback("o1", 20000000, "24", ""))
	require.NoError(t, err)
	assert.Equal(t, payment.CodeAlreadyPaid, out.Code)
	assert.Equal(t, order.PaymentPaid, e.store.Order("o1").PaymentStatus)
}

func TestProcess_CancelledOrder(t *testing.T) {
	e := newEnv(t)
	o := e.store.Order("o1")
	o.Status = order.StatusCancelled
	e.store.PutOrder(o)

	out, err := e.proc.Process(context.Background(), payment.SourceNotify, callback("o1", 20000000, "00", "TXN-1"))
	require.NoError(t, err)
	assert.Equal(t, payment.CodeSuccess, out.Code, "acknowledged so the gateway stops retrying")
	assert.False(t, out.Paid)

	stored := e.store.Order("o1")
	assert.Equal(t, order.PaymentPending, stored.PaymentStatus)
	assert.Equal(t, order.StatusCancelled, stored.Status)
	assert.Equal(t, 4, e.store.Product("cake").Stock)
}

func TestProcess_StorageError(t *testing.T) {
	down := errors.New("connection refused")
	proc := newProcessor(t, failingOrders{err: down}, nil)

	out, err := proc.Process(context.Background(), payment.SourceNotify, callback("o1", 20000000, "00", "TXN-1"))
	require.ErrorIs(t, err, down)
	assert.Equal(t, payment.CodeUnknown, out.Code)
	assert.Equal(t, "00", out.GatewayCode)
}

func TestCode_Message(t *testing.T) {
	assert.Equal(t, "Confirm success", payment.CodeSuccess.Message())
	assert.Equal(t, "Unknown error", payment.Code("42").Message())
}
