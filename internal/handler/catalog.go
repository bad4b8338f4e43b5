package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/review"
)

// listProducts serves one catalog page, newest first.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f := product.Filter{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		CategoryID: r.URL.Query().Get("category"),
		Page:       max(page, 1),
	}

	products, total, err := h.Products.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list products"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("products", func(e *jx.Encoder) { h.encodeProducts(e, products) })
			integer(e, "page", f.Page)
			integer(e, "pages", product.Pages(total))
			integer(e, "total", total)
		})
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Products.Categories(r.Context())
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list categories"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, c := range categories {
				encodeCategory(e, c)
			}
		})
	})
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := h.Products.GetByID(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}

	reviews, err := h.Reviews.ListByProduct(ctx, id)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list reviews"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range reviews {
				encodeReview(e, &reviews[i])
			}
		})
	})
}

// createReview accepts {orderId, rating, comment} for a product the user
// received in a delivered order.
func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	in := review.Input{
		UserID:    VisitorFromContext(r.Context()).UserID,
		ProductID: chi.URLParam(r, "id"),
	}
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			in.OrderID, err = d.Str()
		case "rating":
			in.Rating, err = d.Int()
		case "comment":
			in.Comment, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if in.OrderID == "" {
		h.fail(w, r, badRequest("orderId is required"))
		return
	}

	rv, err := h.Reviews.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeReview(e, rv) })
}
