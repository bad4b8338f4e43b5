package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/order"
)

// adminListOrders accepts optional status and limit query parameters.
func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	var f order.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := order.ParseStatus(raw)
		if err != nil {
			h.fail(w, r, badRequest("%s", err.Error()))
			return
		}
		f.Status = st
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f.Limit = limit

	orders, err := h.Orders.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list orders"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// adminUpdateStatus accepts {status} and moves the order through the
// fulfillment state machine.
func (h *Handler) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var raw string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := order.ParseStatus(raw)
	if err != nil {
		h.fail(w, r, badRequest("%s", err.Error()))
		return
	}

	o, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), st)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, nil, nil) })
}

func (h *Handler) adminListDiscounts(w http.ResponseWriter, r *http.Request) {
	discounts, err := h.Discounts.List(r.Context())
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list discounts"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range discounts {
				encodeDiscount(e, &discounts[i])
			}
		})
	})
}

// adminCreateDiscount accepts a discount definition. Money fields may be
// numbers or numeric strings, dates are RFC 3339. active defaults to true.
func (h *Handler) adminCreateDiscount(w http.ResponseWriter, r *http.Request) {
	d := discount.Discount{Active: true}
	err := decodeObject(r, func(dec *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			d.Code, err = dec.Str()
		case "description":
			d.Description, err = dec.Str()
		case "type":
			var t string
			t, err = dec.Str()
			d.Type = discount.Type(t)
		case "value":
			d.Value, err = decodeDecimal(dec)
		case "minOrderValue":
			d.MinOrderValue, err = decodeDecimal(dec)
		case "maxDiscount":
			if dec.Next() == jx.Null {
				return dec.Null()
			}
			d.MaxDiscount.Decimal, err = decodeDecimal(dec)
			d.MaxDiscount.Valid = err == nil
		case "usageLimit":
			if dec.Next() == jx.Null {
				return dec.Null()
			}
			var n int
			n, err = dec.Int()
			d.UsageLimit = &n
		case "startDate":
			d.StartDate, err = decodeTime(dec)
		case "endDate":
			d.EndDate, err = decodeTime(dec)
		case "active":
			d.Active, err = dec.Bool()
		default:
			err = dec.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.Discounts.Create(r.Context(), &d); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeDiscount(e, &d) })
}
