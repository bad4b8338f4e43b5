// Package handler exposes the storefront as a JSON HTTP API under /api.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bakery-shop/internal/domain/auth"
	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/review"
	"github.com/xenking/bakery-shop/internal/domain/wishlist"
	"github.com/xenking/bakery-shop/internal/payment"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	// APIKeyPepper keys the HMAC used to hash admin API keys.
	APIKeyPepper []byte
	Cookie       CookieConfig
}

// CookieConfig describes the visitor session cookie.
type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Sessions is the part of the session store the HTTP layer touches
// directly. The cart itself goes through cart.Service.
type Sessions interface {
	UserID(ctx context.Context, sessionID string) (string, error)
	Clear(ctx context.Context, sessionID string) error
}

// Deps are the domain services behind the API.
type Deps struct {
	Products  product.Repository
	Carts     *cart.Service
	Orders    *order.Service
	Reviews   *review.Service
	Wishlists wishlist.Repository
	Discounts *discount.Ledger
	Gateway   *payment.Gateway
	Payments  *payment.Processor
	Sessions  Sessions
	APIKeys   auth.Repository
}

// Handler serves the storefront API.
type Handler struct {
	Deps

	imageBaseURL string
	pepper       []byte
	cookie       CookieConfig
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, deps Deps) *Handler {
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = "bakery_session"
	}
	if cfg.Cookie.TTL <= 0 {
		cfg.Cookie.TTL = 7 * 24 * time.Hour
	}
	return &Handler{
		Deps:         deps,
		imageBaseURL: cfg.ImageBaseURL,
		pepper:       cfg.APIKeyPepper,
		cookie:       cfg.Cookie,
	}
}

// NotifyPath is the gateway notification route relative to the API root.
const NotifyPath = "/payment/vnpay/ipn"

// Routes returns the API router, to be mounted at /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Server-to-server notification: no visitor session.
	r.Get(NotifyPath, h.paymentNotify)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/orders", h.adminListOrders)
		r.Put("/orders/{id}/status", h.adminUpdateStatus)
		r.Get("/discounts", h.adminListDiscounts)
		r.Post("/discounts", h.adminCreateDiscount)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.visitor)

		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/products/{id}/reviews", h.listReviews)
		r.Get("/categories", h.listCategories)

		r.Get("/cart", h.viewCart)
		r.Post("/cart/items", h.addCartItem)
		r.Put("/cart/items/{productId}", h.updateCartItem)
		r.Delete("/cart/items/{productId}", h.removeCartItem)
		r.Post("/cart/discount", h.applyDiscount)
		r.Delete("/cart/discount", h.removeDiscount)

		r.Get("/payment/vnpay/return", h.paymentReturn)

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)

			r.Post("/products/{id}/reviews", h.createReview)
			r.Post("/checkout", h.checkout)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Get("/orders/{id}/pay", h.payOrder)
			r.Get("/wishlist", h.listWishlist)
			r.Post("/wishlist/{productId}", h.addWishlist)
			r.Delete("/wishlist/{productId}", h.removeWishlist)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
