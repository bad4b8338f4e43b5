package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/pkg/httpmiddleware"
)

// checkout accepts {name, phone, address, paymentMethod, bankCode}.
// Gateway orders are returned together with the signed paymentUrl the
// client must redirect to.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var method, bankCode string
	var ship order.Shipping
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			ship.Name, err = d.Str()
		case "phone":
			ship.Phone, err = d.Str()
		case "address":
			ship.Address, err = d.Str()
		case "paymentMethod":
			method, err = d.Str()
		case "bankCode":
			bankCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	v := VisitorFromContext(r.Context())
	o, err := h.Orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:    v.UserID,
		SessionID: v.SessionID,
		Shipping:  ship,
		Method:    order.ParsePaymentMethod(method),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var paymentURL string
	if o.PaymentMethod == order.MethodGateway {
		paymentURL = h.Gateway.PaymentURL(o, httpmiddleware.ClientIP(r), bankCode)
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o, nil, func(e *jx.Encoder) {
			if paymentURL != "" {
				str(e, "paymentUrl", paymentURL)
			}
		})
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListByUser(r.Context(), VisitorFromContext(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list orders"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// getOrder returns the user's order with a reviewable flag per item.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.Orders.Get(ctx, VisitorFromContext(ctx).UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reviewable, err := h.Reviews.Reviewable(ctx, o)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "review eligibility"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, reviewable, nil) })
}

// payOrder restarts gateway payment of an unpaid order by redirecting to
// a freshly signed payment URL. A paid order is returned as is.
func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.Orders.Get(ctx, VisitorFromContext(ctx).UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if o.PaymentMethod != order.MethodGateway {
		writeError(w, http.StatusBadRequest, "order is not paid through the gateway")
		return
	}
	if o.PaymentStatus == order.PaymentPaid {
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, nil, nil) })
		return
	}
	http.Redirect(w, r, h.Gateway.PaymentURL(o, httpmiddleware.ClientIP(r), r.URL.Query().Get("bankCode")), http.StatusFound)
}
