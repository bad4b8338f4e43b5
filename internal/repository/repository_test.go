//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bakery-shop/internal/domain/auth"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/internal/domain/product"
	"github.com/xenking/bakery-shop/internal/domain/review"
	"github.com/xenking/bakery-shop/internal/domain/user"
	"github.com/xenking/bakery-shop/internal/repository"
)

type repositorySuite struct {
	suite.Suite

	pool      *pgxpool.Pool
	container testcontainers.Container

	products  *repository.ProductRepository
	discounts *repository.DiscountRepository
	orders    *repository.OrderRepository
	users     *repository.UserRepository
	reviews   *repository.ReviewRepository
	wishlists *repository.WishlistRepository
	apiKeys   *repository.APIKeyRepository
	seeder    *repository.Seeder
}

func TestRepositorySuite(t *testing.T) {
	defer goleak.VerifyNone(t)

	suite.Run(t, new(repositorySuite))
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("bakery"),
		postgres.WithUsername("bakery"),
		postgres.WithPassword("bakery"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}
	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return ctr, "", err
	}
	return ctr, connStr, nil
}

func (s *repositorySuite) SetupSuite() {
	ctx := s.T().Context()

	var (
		connStr string
		err     error
	)
	s.container, connStr, err = startPostgres(ctx)
	s.Require().NoError(err)

	s.Require().NoError(repository.MigrateUp(connStr))

	s.pool, err = repository.NewPool(ctx, connStr)
	s.Require().NoError(err)

	s.products = repository.NewProductRepository(s.pool)
	s.discounts = repository.NewDiscountRepository(s.pool)
	s.orders = repository.NewOrderRepository(s.pool)
	s.users = repository.NewUserRepository(s.pool)
	s.reviews = repository.NewReviewRepository(s.pool)
	s.wishlists = repository.NewWishlistRepository(s.pool)
	s.apiKeys = repository.NewAPIKeyRepository(s.pool)
	s.seeder = repository.NewSeeder(s.pool)
}

func (s *repositorySuite) TearDownSuite() {
	ctx := s.T().Context()

	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(ctx))
	}
}

func (s *repositorySuite) SetupTest() {
	_, err := s.pool.Exec(s.T().Context(), `TRUNCATE categories, products, users, discounts,
		orders, order_items, reviews, wishlist_entries, api_keys CASCADE`)
	s.Require().NoError(err)
}

func fakeProduct(stock int) product.Product {
	return product.Product{
		ID:          uuid.NewString(),
		Name:        gofakeit.ProductName(),
		Description: gofakeit.Sentence(8),
		Price:       decimal.NewFromInt(int64(gofakeit.IntRange(10, 500)) * 1000),
		Image:       gofakeit.URL(),
		Stock:       stock,
	}
}

func fakeUser() user.User {
	return user.User{
		ID:    uuid.NewString(),
		Email: gofakeit.Email(),
		Role:  "customer",
	}
}

func (s *repositorySuite) seed(data repository.SeedData) {
	s.Require().NoError(s.seeder.Seed(s.T().Context(), &data))
}

func (s *repositorySuite) placeOrder(u user.User, code string, items ...order.Item) *order.Order {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	o := &order.Order{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		Items:         items,
		TotalPrice:    total,
		DiscountCode:  code,
		FinalPrice:    total,
		PaymentMethod: order.MethodGateway,
		PaymentStatus: order.PaymentPending,
		Status:        order.StatusPending,
		Shipping: order.Shipping{
			Name:    gofakeit.Name(),
			Phone:   gofakeit.Phone(),
			Address: gofakeit.Street(),
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.orders.Create(s.T().Context(), o))
	return o
}

func (s *repositorySuite) TestProductList() {
	ctx := s.T().Context()
	cat := product.Category{ID: "bread", Name: "Bread"}
	var products []product.Product
	for i := range 8 {
		p := fakeProduct(5)
		p.Name = "Loaf " + gofakeit.Word()
		if i < 3 {
			p.CategoryID = cat.ID
		}
		products = append(products, p)
	}
	s.seed(repository.SeedData{Categories: []product.Category{cat}, Products: products})

	page, total, err := s.products.List(ctx, product.Filter{Page: 1})
	s.Require().NoError(err)
	s.Equal(8, total)
	s.Len(page, product.PageSize)

	page, _, err = s.products.List(ctx, product.Filter{Page: 2})
	s.Require().NoError(err)
	s.Len(page, 2)

	_, total, err = s.products.List(ctx, product.Filter{CategoryID: "bread"})
	s.Require().NoError(err)
	s.Equal(3, total)

	_, total, err = s.products.List(ctx, product.Filter{Search: "LOAF"})
	s.Require().NoError(err)
	s.Equal(8, total)

	cats, err := s.products.Categories(ctx)
	s.Require().NoError(err)
	s.Equal([]product.Category{cat}, cats)

	_, err = s.products.GetByID(ctx, "missing")
	s.ErrorIs(err, product.ErrNotFound)
}

func (s *repositorySuite) TestProductSearchIsLiteral() {
	ctx := s.T().Context()
	names := []string{"100% Rye", "Rye_Loaf", "Rye Loaf", "Ryeloaf"}
	products := make([]product.Product, len(names))
	for i, name := range names {
		products[i] = fakeProduct(5)
		products[i].Name = name
	}
	s.seed(repository.SeedData{Products: products})

	for search, want := range map[string]int{
		"%":     1,
		"_":     1,
		"rye_l": 1,
		"rye":   4,
		`\\`:    0,
		"% rye": 1,
		"e%l":   0,
	} {
		_, total, err := s.products.List(ctx, product.Filter{Search: search})
		s.Require().NoError(err)
		s.Equal(want, total, "search %q", search)
	}
}

func (s *repositorySuite) TestDiscountCreate() {
	ctx := s.T().Context()
	limit := 10
	d := &discount.Discount{
		Code:          "SPRING15",
		Type:          discount.TypePercentage,
		Value:         decimal.NewFromInt(15),
		MinOrderValue: decimal.NewFromInt(100000),
		MaxDiscount:   decimal.NewNullDecimal(decimal.NewFromInt(50000)),
		UsageLimit:    &limit,
		StartDate:     time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond),
		EndDate:       time.Now().Add(24 * time.Hour).UTC().Truncate(time.Microsecond),
		Active:        true,
	}
	s.Require().NoError(s.discounts.Create(ctx, d))

	got, err := s.discounts.FindByCode(ctx, "spring15")
	s.Require().NoError(err)
	if diff := cmp.Diff(d, got,
		cmpopts.EquateApproxTime(time.Millisecond),
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	); diff != "" {
		s.Failf("discount mismatch", "(-want +got):\n%s", diff)
	}

	dup := *d
	dup.ID = ""
	s.ErrorIs(s.discounts.Create(ctx, &dup), discount.ErrCodeExists)

	_, err = s.discounts.FindByCode(ctx, "NOPE")
	s.ErrorIs(err, discount.ErrInvalidCode)
}

func (s *repositorySuite) TestOrderRoundTrip() {
	ctx := s.T().Context()
	u := fakeUser()
	p1, p2 := fakeProduct(5), fakeProduct(5)
	s.seed(repository.SeedData{Users: []user.User{u}, Products: []product.Product{p1, p2}})

	o := s.placeOrder(u, "",
		order.Item{ProductID: p1.ID, Quantity: 2, Price: p1.Price},
		order.Item{ProductID: p2.ID, Quantity: 1, Price: p2.Price},
	)

	got, err := s.orders.Get(ctx, o.ID)
	s.Require().NoError(err)
	if diff := cmp.Diff(o, got,
		cmpopts.EquateApproxTime(time.Millisecond),
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	); diff != "" {
		s.Failf("order mismatch", "(-want +got):\n%s", diff)
	}

	list, err := s.orders.ListByUser(ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Len(list[0].Items, 2)

	_, err = s.orders.Get(ctx, "missing")
	s.ErrorIs(err, order.ErrNotFound)
}

func (s *repositorySuite) TestMarkPaidIsCompareAndSet() {
	ctx := s.T().Context()
	u := fakeUser()
	p := fakeProduct(5)
	s.seed(repository.SeedData{Users: []user.User{u}, Products: []product.Product{p}})
	o := s.placeOrder(u, "", order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price})

	ok, err := s.orders.MarkFailed(ctx, o.ID, "payment failed: 24")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.orders.MarkPaid(ctx, o.ID, order.Payment{Ref: "A", PaidAt: time.Now(), Status: order.StatusConfirmed})
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.orders.MarkPaid(ctx, o.ID, order.Payment{Ref: "B", PaidAt: time.Now(), Status: order.StatusConfirmed})
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.orders.MarkFailed(ctx, o.ID, "late failure")
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.orders.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(order.PaymentPaid, got.PaymentStatus)
	s.Equal(order.StatusConfirmed, got.Status)
	s.Equal("A", got.PaymentRef)
	s.NotNil(got.PaidAt)
}

func (s *repositorySuite) TestConcurrentFinalize() {
	ctx := s.T().Context()
	u := fakeUser()
	p := fakeProduct(10)
	d := discount.Discount{
		ID:        uuid.NewString(),
		Code:      "SAVE10",
		Type:      discount.TypePercentage,
		Value:     decimal.NewFromInt(10),
		StartDate: time.Now().Add(-time.Hour),
		EndDate:   time.Now().Add(time.Hour),
		Active:    true,
	}
	s.seed(repository.SeedData{Users: []user.User{u}, Products: []product.Product{p}, Discounts: []discount.Discount{d}})
	o := s.placeOrder(u, "SAVE10", order.Item{ProductID: p.ID, Quantity: 3, Price: p.Price})

	engine, err := order.NewEngine(s.orders, s.orders, nil, noop.NewMeterProvider().Meter("test"))
	s.Require().NoError(err)
	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			stale := *o
			_, err := engine.FinalizePaidOrder(ctx, &stale, order.Payment{Ref: "TXN-" + string(rune('A'+i))})
			return err
		})
	}
	s.Require().NoError(g.Wait())

	got, err := s.products.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(7, got.Stock)

	found, err := s.discounts.FindByCode(ctx, "SAVE10")
	s.Require().NoError(err)
	s.Equal(1, found.UsedCount)

	stored, err := s.orders.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.True(stored.Settled())
}

func (s *repositorySuite) TestShortageRollsBackDeduction() {
	ctx := s.T().Context()
	u := fakeUser()
	plenty, scarce := fakeProduct(10), fakeProduct(1)
	s.seed(repository.SeedData{Users: []user.User{u}, Products: []product.Product{plenty, scarce}})
	o := s.placeOrder(u, "",
		order.Item{ProductID: plenty.ID, Quantity: 2, Price: plenty.Price},
		order.Item{ProductID: scarce.ID, Quantity: 2, Price: scarce.Price},
	)

	engine, err := order.NewEngine(s.orders, s.orders, nil, noop.NewMeterProvider().Meter("test"))
	s.Require().NoError(err)
	err = engine.DeductStockIfNeeded(ctx, o)
	var shortage *product.ShortageError
	s.Require().ErrorAs(err, &shortage)
	s.Equal(scarce.ID, shortage.ProductID)

	got, err := s.products.GetByID(ctx, plenty.ID)
	s.Require().NoError(err)
	s.Equal(10, got.Stock)

	stored, err := s.orders.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.False(stored.StockDeducted)
}

func (s *repositorySuite) TestReviewAggregates() {
	ctx := s.T().Context()
	u1, u2 := fakeUser(), fakeUser()
	u1.Contact.Name = "Linh"
	p := fakeProduct(5)
	s.seed(repository.SeedData{Users: []user.User{u1, u2}, Products: []product.Product{p}})
	o1 := s.placeOrder(u1, "", order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price})
	o2 := s.placeOrder(u2, "", order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price})

	for _, rv := range []review.Review{
		{ID: uuid.NewString(), ProductID: p.ID, UserID: u1.ID, OrderID: o1.ID, Rating: 5, CreatedAt: time.Now()},
		{ID: uuid.NewString(), ProductID: p.ID, UserID: u2.ID, OrderID: o2.ID, Rating: 2, CreatedAt: time.Now()},
	} {
		s.Require().NoError(s.reviews.Create(ctx, &rv))
	}

	dup := review.Review{ID: uuid.NewString(), ProductID: p.ID, UserID: u1.ID, OrderID: o1.ID, Rating: 1, CreatedAt: time.Now()}
	s.ErrorIs(s.reviews.Create(ctx, &dup), review.ErrDuplicate)

	got, err := s.products.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(2, got.ReviewCount)
	s.InDelta(3.5, got.Rating, 0.001)

	exists, err := s.reviews.Exists(ctx, u1.ID, p.ID, o1.ID)
	s.Require().NoError(err)
	s.True(exists)

	list, err := s.reviews.ListByProduct(ctx, p.ID)
	s.Require().NoError(err)
	s.Len(list, 2)
}

func (s *repositorySuite) TestWishlist() {
	ctx := s.T().Context()
	u := fakeUser()
	p := fakeProduct(5)
	s.seed(repository.SeedData{Users: []user.User{u}, Products: []product.Product{p}})

	s.Require().NoError(s.wishlists.Add(ctx, u.ID, p.ID))
	s.Require().NoError(s.wishlists.Add(ctx, u.ID, p.ID))
	s.ErrorIs(s.wishlists.Add(ctx, u.ID, "missing"), product.ErrNotFound)

	list, err := s.wishlists.List(ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(p.ID, list[0].ID)

	s.Require().NoError(s.wishlists.Remove(ctx, u.ID, p.ID))
	list, err = s.wishlists.List(ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *repositorySuite) TestUserContact() {
	ctx := s.T().Context()
	u := fakeUser()
	s.seed(repository.SeedData{Users: []user.User{u}})

	c := user.Contact{Name: gofakeit.Name(), Phone: gofakeit.Phone(), Address: gofakeit.Street()}
	s.Require().NoError(s.users.UpdateContact(ctx, u.ID, c))

	got, err := s.users.GetByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(c, got.Contact)

	s.ErrorIs(s.users.UpdateContact(ctx, "missing", c), user.ErrNotFound)
}

func (s *repositorySuite) TestAPIKeys() {
	ctx := s.T().Context()
	ops := auth.APIKeyInfo{ID: uuid.NewString(), KeyHash: "aa01", Name: "ops", Scopes: []string{auth.ScopeAdmin}}
	reporting := auth.APIKeyInfo{ID: uuid.NewString(), KeyHash: "bb02", Name: "reporting", Scopes: []string{"read"}}
	s.seed(repository.SeedData{APIKeys: []auth.APIKeyInfo{reporting, ops}})

	got, err := s.apiKeys.FindByHash(ctx, "aa01")
	s.Require().NoError(err)
	s.Equal(ops, *got)
	s.True(got.HasScope(auth.ScopeAdmin))

	keys, err := s.apiKeys.List(ctx)
	s.Require().NoError(err)
	s.Equal([]auth.APIKeyInfo{ops, reporting}, keys)

	s.Require().NoError(s.apiKeys.Revoke(ctx, "ops"))
	_, err = s.apiKeys.FindByHash(ctx, "aa01")
	s.ErrorIs(err, auth.ErrKeyNotFound)
	s.ErrorIs(s.apiKeys.Revoke(ctx, "ops"), auth.ErrKeyNotFound)

	keys, err = s.apiKeys.List(ctx)
	s.Require().NoError(err)
	s.Equal([]auth.APIKeyInfo{reporting}, keys)

	// Re-seeding a revoked key activates it again.
	s.seed(repository.SeedData{APIKeys: []auth.APIKeyInfo{ops}})
	_, err = s.apiKeys.FindByHash(ctx, "aa01")
	s.NoError(err)
}
