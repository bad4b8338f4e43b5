package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bakery-shop/internal/payment"
)

// paymentReturn handles the browser redirect back from the gateway.
// Integrity failures are client errors; otherwise the order is returned
// with its payment outcome and a paid order clears the visitor's cart.
func (h *Handler) paymentReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := h.Payments.Process(ctx, payment.SourceReturn, r.URL.Query())
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "process payment return"))
		return
	}

	switch out.Code {
	case payment.CodeInvalidSignature, payment.CodeWrongMethod, payment.CodeInvalidAmount:
		writeError(w, http.StatusBadRequest, out.Code.Message())
		return
	case payment.CodeOrderNotFound:
		writeError(w, http.StatusNotFound, out.Code.Message())
		return
	}

	if out.Paid {
		if err := h.Sessions.Clear(ctx, VisitorFromContext(ctx).SessionID); err != nil {
			zctx.From(ctx).Warn("Clear session after payment", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, out.Order, nil, func(e *jx.Encoder) {
			boolean(e, "paid", out.Paid)
			str(e, "gatewayCode", out.GatewayCode)
		})
	})
}

// paymentNotify handles the gateway's server-to-server notification. It
// always answers 200 with {RspCode, Message}; the gateway retries on 99.
func (h *Handler) paymentNotify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := payment.CodeUnknown
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			zctx.From(ctx).Error("Panic in payment notification", zap.Any("panic", rec), zap.Stack("stack"))
			code = payment.CodeUnknown
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				str(e, "RspCode", string(code))
				str(e, "Message", code.Message())
			})
		})
	}()

	out, err := h.Payments.Process(ctx, payment.SourceNotify, r.URL.Query())
	if err != nil {
		zctx.From(ctx).Error("Process payment notification", zap.Error(err))
	}
	code = out.Code
}
