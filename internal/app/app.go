package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bakery-shop/internal/domain/cart"
	"github.com/xenking/bakery-shop/internal/domain/discount"
	"github.com/xenking/bakery-shop/internal/domain/order"
	"github.com/xenking/bakery-shop/internal/domain/review"
	"github.com/xenking/bakery-shop/internal/events"
	"github.com/xenking/bakery-shop/internal/handler"
	"github.com/xenking/bakery-shop/internal/payment"
	"github.com/xenking/bakery-shop/internal/repository"
	"github.com/xenking/bakery-shop/internal/session"
	"github.com/xenking/bakery-shop/pkg/health"
	"github.com/xenking/bakery-shop/pkg/httpmiddleware"
)

const serviceName = "bakery-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	if err := repository.MigrateUp(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	// Redis-backed visitor sessions.
	rdb, err := session.NewClient(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "create redis client")
	}
	defer func() { _ = rdb.Close() }()
	sessions := session.New(rdb, cfg.Session.TTL)

	// Health check service.
	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.PingCheck("redis", sessions))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Order events. Without brokers events are dropped. The producer
	// outlives the HTTP drain and is stopped once the server is down.
	g, gctx := errgroup.WithContext(ctx)
	producerCtx, stopProducer := context.WithCancel(zctx.Base(context.WithoutCancel(ctx), lg))
	defer stopProducer()
	var publisher order.Publisher = order.NopPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Buffer)
		g.Go(func() error { return producer.Run(producerCtx) })
		publisher = producer
		lg.Info("Publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	discountRepo := repository.NewDiscountRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	reviewRepo := repository.NewReviewRepository(pool)
	wishlistRepo := repository.NewWishlistRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	ledger := discount.NewLedger(discountRepo)
	engine, err := order.NewEngine(orderRepo, orderRepo, publisher, m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create order engine")
	}
	orderService := order.NewService(productRepo, sessions, userRepo, orderRepo, engine, publisher)

	loc, err := cfg.Gateway.Location()
	if err != nil {
		return err
	}
	gateway, err := payment.New(payment.Config{
		MerchantCode: cfg.Gateway.MerchantCode,
		Secret:       cfg.Gateway.Secret,
		URL:          cfg.Gateway.URL,
		ReturnURL:    cfg.Gateway.ReturnURL,
		Locale:       cfg.Gateway.Locale,
		Currency:     cfg.Gateway.Currency,
		Location:     loc,
	})
	if err != nil {
		return errors.Wrap(err, "create payment gateway")
	}
	processor, err := payment.NewProcessor(gateway, orderRepo, engine, m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create payment processor")
	}

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{
			ImageBaseURL: cfg.ImageBaseURL,
			APIKeyPepper: []byte(cfg.APIKeyPepper),
			Cookie: handler.CookieConfig{
				Name:   cfg.Session.CookieName,
				TTL:    cfg.Session.TTL,
				Secure: cfg.Session.Secure,
			},
		},
		handler.Deps{
			Products:  productRepo,
			Carts:     cart.NewService(sessions, productRepo, ledger),
			Orders:    orderService,
			Reviews:   review.NewService(reviewRepo, orderRepo),
			Wishlists: wishlistRepo,
			Discounts: ledger,
			Gateway:   gateway,
			Payments:  processor,
			Sessions:  sessions,
			APIKeys:   apikeyRepo,
		},
	)

	r := newRouter(ctx, cfg, m.MeterProvider(), healthSvc, h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           r,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		stopProducer()
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// newRouter serves health endpoints and mounts api at /api behind the
// shared middleware chain. Middlewares run inside chi so the matched route
// pattern is visible to them. Gateway notifications bypass the rate
// limiter: they come from a few gateway hosts and must always be answered.
func newRouter(ctx context.Context, cfg *Config, mp metric.MeterProvider, healthSvc *health.Health, api http.Handler) *chi.Mux {
	notifyPath := "/api" + handler.NotifyPath

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:          cfg.CORS.Origins,
			Headers:          []string{"Content-Type", "Authorization", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   func(req *http.Request) bool { return req.URL.Path == notifyPath },
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument(serviceName, mp),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/api", api)
	return r
}
