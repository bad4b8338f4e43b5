package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/review"
)

const maxBodyBytes = 1 << 20

// badRequestError is a malformed request body or parameter.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// statusBySentinel maps domain sentinel errors to HTTP statuses. The first
// match wins.
var statusBySentinel = []struct {
	err    error
	status int
}{
	{product.ErrNotFound, http.StatusNotFound},
	{order.ErrNotFound, http.StatusNotFound},
	{review.ErrOrderNotFound, http.StatusNotFound},
	{cart.ErrNotInCart, http.StatusNotFound},

	{cart.ErrInvalidQuantity, http.StatusBadRequest},
	{cart.ErrEmpty, http.StatusBadRequest},
	{order.ErrEmptyCart, http.StatusBadRequest},
	{order.ErrMissingShipping, http.StatusBadRequest},
	{review.ErrInvalidRating, http.StatusBadRequest},
	{review.ErrCommentTooLong, http.StatusBadRequest},
	{discount.ErrInvalidDefinition, http.StatusBadRequest},

	{product.ErrOutOfStock, http.StatusUnprocessableEntity},
	{discount.ErrInvalidCode, http.StatusUnprocessableEntity},
	{discount.ErrOutsideWindow, http.StatusUnprocessableEntity},
	{discount.ErrUsageLimitReached, http.StatusUnprocessableEntity},
	{order.ErrInvalidTransition, http.StatusUnprocessableEntity},
	{review.ErrNotDelivered, http.StatusUnprocessableEntity},
	{review.ErrNotInOrder, http.StatusUnprocessableEntity},
	{review.ErrWindowClosed, http.StatusUnprocessableEntity},

	{review.ErrAlreadyReviewed, http.StatusConflict},
	{discount.ErrCodeExists, http.StatusConflict},
	{order.ErrStatusConflict, http.StatusConflict},
	{order.ErrCancelled, http.StatusConflict},
}

func statusOf(err error) int {
	var (
		bad      *badRequestError
		minimum  *discount.MinimumNotMetError
		missing  *order.ProductNotFoundError
		quantity *order.InvalidQuantityError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.As(err, &minimum), errors.As(err, &missing), errors.As(err, &quantity):
		return http.StatusUnprocessableEntity
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as a {code, message} body. Unexpected errors are logged
// and hidden behind a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeObject reads a JSON object body, calling field for each key.
// Unknown keys must be skipped by field.
func decodeObject(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(nil, r.Body, maxBodyBytes), 4096)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			return err
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, badRequest("expected a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, badRequest("invalid number %q", raw)
	}
	return v, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, badRequest("invalid time %q, want RFC 3339", s)
	}
	return t, nil
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return v, nil
}
