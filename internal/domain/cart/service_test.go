package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/memstore"
)

const sid = "visitor"

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newService(t *testing.T) (*cart.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.PutProduct(product.Product{ID: "croissant", Name: "Croissant", Price: d("50000"), Stock: 3})
	store.PutProduct(product.Product{ID: "baguette", Name: "Baguette", Price: d("30000"), Stock: 10})
	store.PutDiscount(discount.Discount{
		Code:          "BIG",
		Type:          discount.TypeFixed,
		Value:         d("20000"),
		MinOrderValue: d("150000"),
		Active:        true,
		StartDate:     time.Now().Add(-time.Hour),
		EndDate:       time.Now().Add(time.Hour),
	})
	return cart.NewService(store.Sessions(), store.Products(), discount.NewLedger(store.Discounts())), store
}

func TestService_Add(t *testing.T) {
	ctx := context.Background()

	t.Run("merges lines", func(t *testing.T) {
		svc, store := newService(t)
		require.NoError(t, svc.Add(ctx, sid, "croissant", 1))
		require.NoError(t, svc.Add(ctx, sid, "croissant", 2))

		lines, err := store.Sessions().Cart(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, []cart.Line{{ProductID: "croissant", Quantity: 3}}, lines)
	})

	t.Run("combined quantity over stock", func(t *testing.T) {
		svc, _ := newService(t)
		require.NoError(t, svc.Add(ctx, sid, "croissant", 2))

		err := svc.Add(ctx, sid, "croissant", 2)
		var shortage *product.ShortageError
		require.ErrorAs(t, err, &shortage)
		assert.Equal(t, 4, shortage.Requested)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		svc, _ := newService(t)
		require.ErrorIs(t, svc.Add(ctx, sid, "croissant", 0), cart.ErrInvalidQuantity)
	})

	t.Run("unknown product", func(t *testing.T) {
		svc, _ := newService(t)
		require.ErrorIs(t, svc.Add(ctx, sid, "ghost", 1), product.ErrNotFound)
	})
}

func TestService_UpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	require.NoError(t, svc.Add(ctx, sid, "croissant", 1))
	require.NoError(t, svc.Add(ctx, sid, "baguette", 1))

	require.NoError(t, svc.Update(ctx, sid, "baguette", 5))
	require.ErrorIs(t, svc.Update(ctx, sid, "ghost", 1), cart.ErrNotInCart)
	require.ErrorIs(t, svc.Update(ctx, sid, "croissant", 4), product.ErrOutOfStock)

	require.NoError(t, svc.Update(ctx, sid, "croissant", 0))
	lines, err := store.Sessions().Cart(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, []cart.Line{{ProductID: "baguette", Quantity: 5}}, lines)

	require.NoError(t, svc.Remove(ctx, sid, "baguette"))
	require.NoError(t, svc.Remove(ctx, sid, "baguette"))
	lines, err = store.Sessions().Cart(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestService_View(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	require.NoError(t, svc.Add(ctx, sid, "croissant", 2))
	require.NoError(t, svc.Add(ctx, sid, "baguette", 2))

	// A product deleted from the catalog silently drops out of the view.
	require.NoError(t, store.Sessions().SetCart(ctx, sid, []cart.Line{
		{ProductID: "croissant", Quantity: 2},
		{ProductID: "baguette", Quantity: 2},
		{ProductID: "ghost", Quantity: 1},
	}))

	v, err := svc.View(ctx, sid)
	require.NoError(t, err)
	require.Len(t, v.Lines, 2)
	assert.True(t, d("160000").Equal(v.Subtotal))
	assert.True(t, v.Discount.IsZero())
	assert.True(t, d("160000").Equal(v.Total))
}

func TestService_ApplyDiscount(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.ApplyDiscount(ctx, sid, "BIG")
		require.ErrorIs(t, err, cart.ErrEmpty)
	})

	t.Run("minimum not met", func(t *testing.T) {
		svc, store := newService(t)
		require.NoError(t, svc.Add(ctx, sid, "croissant", 2))

		_, err := svc.ApplyDiscount(ctx, sid, "BIG")
		var minErr *discount.MinimumNotMetError
		require.ErrorAs(t, err, &minErr)
		applied, err := store.Sessions().AppliedDiscount(ctx, sid)
		require.NoError(t, err)
		assert.Nil(t, applied)
	})

	t.Run("applies and removes", func(t *testing.T) {
		svc, store := newService(t)
		require.NoError(t, svc.Add(ctx, sid, "croissant", 3))

		preview, err := svc.ApplyDiscount(ctx, sid, " big ")
		require.NoError(t, err)
		assert.Equal(t, "BIG", preview.Applied.Code)
		assert.True(t, d("130000").Equal(preview.Total()))

		v, err := svc.View(ctx, sid)
		require.NoError(t, err)
		assert.True(t, d("20000").Equal(v.Discount))
		assert.True(t, d("130000").Equal(v.Total))
		// Applying never consumes a use.
		assert.Equal(t, 0, store.Discount("BIG").UsedCount)

		require.NoError(t, svc.RemoveDiscount(ctx, sid))
		v, err = svc.View(ctx, sid)
		require.NoError(t, err)
		assert.Nil(t, v.Applied)
		assert.True(t, d("150000").Equal(v.Total))
	})
}
