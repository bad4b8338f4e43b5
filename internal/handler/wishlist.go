package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

func (h *Handler) listWishlist(w http.ResponseWriter, r *http.Request) {
	products, err := h.Wishlists.List(r.Context(), VisitorFromContext(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list wishlist"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProducts(e, products) })
}

// addWishlist is idempotent.
func (h *Handler) addWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.Wishlists.Add(r.Context(), VisitorFromContext(r.Context()).UserID, chi.URLParam(r, "productId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.Wishlists.Remove(r.Context(), VisitorFromContext(r.Context()).UserID, chi.URLParam(r, "productId")); err != nil {
		h.fail(w, r, errors.Wrap(err, "remove from wishlist"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
