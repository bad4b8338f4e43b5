package handler

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/review"
)

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func integer(e *jx.Encoder, name string, v int) {
	e.Field(name, func(e *jx.Encoder) { e.Int(v) })
}

func boolean(e *jx.Encoder, name string, v bool) {
	e.Field(name, func(e *jx.Encoder) { e.Bool(v) })
}

func money(e *jx.Encoder, name string, v decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Float64(v.InexactFloat64()) })
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	e.Field(name, func(e *jx.Encoder) { e.Str(t.UTC().Format(time.RFC3339)) })
}

func optionalTime(e *jx.Encoder, name string, t *time.Time) {
	if t == nil {
		e.Field(name, func(e *jx.Encoder) { e.Null() })
		return
	}
	timestamp(e, name, *t)
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", p.ID)
		str(e, "name", p.Name)
		str(e, "description", p.Description)
		money(e, "price", p.Price)
		str(e, "categoryId", p.CategoryID)
		str(e, "image", h.imageURL(p.Image))
		integer(e, "stock", p.Stock)
		e.Field("rating", func(e *jx.Encoder) { e.Float64(p.Rating) })
		integer(e, "reviewCount", p.ReviewCount)
		timestamp(e, "createdAt", p.CreatedAt)
	})
}

func (h *Handler) encodeProducts(e *jx.Encoder, ps []product.Product) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range ps {
			h.encodeProduct(e, p)
		}
	})
}

func encodeCategory(e *jx.Encoder, c product.Category) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", c.ID)
		str(e, "name", c.Name)
		str(e, "description", c.Description)
	})
}

func encodeApplied(e *jx.Encoder, a *discount.Applied) {
	if a == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		str(e, "code", a.Code)
		str(e, "type", string(a.Type))
		money(e, "value", a.Value)
		if a.MaxDiscount.Valid {
			money(e, "maxDiscount", a.MaxDiscount.Decimal)
		}
	})
}

func (h *Handler) encodeCart(e *jx.Encoder, v *cart.View) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range v.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product", func(e *jx.Encoder) { h.encodeProduct(e, l.Product) })
						integer(e, "quantity", l.Quantity)
						money(e, "subtotal", l.Subtotal)
					})
				}
			})
		})
		money(e, "subtotal", v.Subtotal)
		money(e, "discount", v.Discount)
		money(e, "total", v.Total)
		e.Field("appliedDiscount", func(e *jx.Encoder) { encodeApplied(e, v.Applied) })
	})
}

func encodePreview(e *jx.Encoder, p *discount.Preview) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("appliedDiscount", func(e *jx.Encoder) { encodeApplied(e, &p.Applied) })
		money(e, "subtotal", p.Subtotal)
		money(e, "discount", p.Amount)
		money(e, "total", p.Total())
	})
}

// encodeOrder writes o. reviewable, when non-nil, adds a per-item flag.
func encodeOrder(e *jx.Encoder, o *order.Order, reviewable map[string]bool, extra func(e *jx.Encoder)) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", o.ID)
		str(e, "userId", o.UserID)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						str(e, "productId", it.ProductID)
						integer(e, "quantity", it.Quantity)
						money(e, "price", it.Price)
						money(e, "subtotal", it.Subtotal())
						if reviewable != nil {
							boolean(e, "reviewable", reviewable[it.ProductID])
						}
					})
				}
			})
		})
		money(e, "totalPrice", o.TotalPrice)
		str(e, "discountCode", o.DiscountCode)
		money(e, "discountAmount", o.DiscountAmount)
		money(e, "finalPrice", o.FinalPrice)
		str(e, "paymentMethod", string(o.PaymentMethod))
		str(e, "paymentStatus", string(o.PaymentStatus))
		str(e, "paymentRef", o.PaymentRef)
		str(e, "paymentMessage", o.PaymentMessage)
		optionalTime(e, "paidAt", o.PaidAt)
		str(e, "status", string(o.Status))
		e.Field("shipping", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				str(e, "name", o.Shipping.Name)
				str(e, "phone", o.Shipping.Phone)
				str(e, "address", o.Shipping.Address)
			})
		})
		timestamp(e, "createdAt", o.CreatedAt)
		if extra != nil {
			extra(e)
		}
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i], nil, nil)
		}
	})
}

func encodeDiscount(e *jx.Encoder, d *discount.Discount) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", d.ID)
		str(e, "code", d.Code)
		str(e, "description", d.Description)
		str(e, "type", string(d.Type))
		money(e, "value", d.Value)
		money(e, "minOrderValue", d.MinOrderValue)
		if d.MaxDiscount.Valid {
			money(e, "maxDiscount", d.MaxDiscount.Decimal)
		}
		if d.UsageLimit != nil {
			integer(e, "usageLimit", *d.UsageLimit)
		}
		integer(e, "usedCount", d.UsedCount)
		timestamp(e, "startDate", d.StartDate)
		timestamp(e, "endDate", d.EndDate)
		boolean(e, "active", d.Active)
		timestamp(e, "createdAt", d.CreatedAt)
	})
}

func encodeReview(e *jx.Encoder, r *review.Review) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", r.ID)
		str(e, "productId", r.ProductID)
		str(e, "userId", r.UserID)
		str(e, "userName", r.UserName)
		str(e, "orderId", r.OrderID)
		integer(e, "rating", r.Rating)
		str(e, "comment", r.Comment)
		timestamp(e, "createdAt", r.CreatedAt)
	})
}
