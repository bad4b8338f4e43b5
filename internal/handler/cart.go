package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r, http.StatusOK)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, status int) {
	v, err := h.Carts.View(r.Context(), VisitorFromContext(r.Context()).SessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) { h.encodeCart(e, v) })
}

// addCartItem accepts {productId, quantity}; quantity defaults to 1.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		qty       = 1
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = d.Str()
		case "quantity":
			qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if productID == "" {
		h.fail(w, r, badRequest("productId is required"))
		return
	}

	if err := h.Carts.Add(r.Context(), VisitorFromContext(r.Context()).SessionID, productID, qty); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK)
}

// updateCartItem accepts {quantity}; zero or less removes the line.
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var qty *int
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		qty = &v
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if qty == nil {
		h.fail(w, r, badRequest("quantity is required"))
		return
	}

	sid := VisitorFromContext(r.Context()).SessionID
	if err := h.Carts.Update(r.Context(), sid, chi.URLParam(r, "productId"), *qty); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	sid := VisitorFromContext(r.Context()).SessionID
	if err := h.Carts.Remove(r.Context(), sid, chi.URLParam(r, "productId")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK)
}

// applyDiscount accepts {code} and previews the discount on the cart.
func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	var code string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	preview, err := h.Carts.ApplyDiscount(r.Context(), VisitorFromContext(r.Context()).SessionID, code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePreview(e, preview) })
}

func (h *Handler) removeDiscount(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.RemoveDiscount(r.Context(), VisitorFromContext(r.Context()).SessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK)
}
