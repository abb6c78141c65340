package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dariomatias/vendora-backend/api/routes"
	"github.com/dariomatias/vendora-backend/internal/cart"
	"github.com/dariomatias/vendora-backend/internal/catalog"
	checkoutsvc "github.com/dariomatias/vendora-backend/internal/checkout"
	"github.com/dariomatias/vendora-backend/internal/inventory"
	"github.com/dariomatias/vendora-backend/internal/orders"
	"github.com/dariomatias/vendora-backend/internal/payments"
	"github.com/dariomatias/vendora-backend/internal/reservation"
	paymentwebhook "github.com/dariomatias/vendora-backend/internal/webhooks/payment"
	"github.com/dariomatias/vendora-backend/pkg/config"
	"github.com/dariomatias/vendora-backend/pkg/db"
	"github.com/dariomatias/vendora-backend/pkg/logger"
	"github.com/dariomatias/vendora-backend/pkg/metrics"
	"github.com/dariomatias/vendora-backend/pkg/migrate"
	"github.com/dariomatias/vendora-backend/pkg/outbox"
	"github.com/dariomatias/vendora-backend/pkg/redis"
	pkgstripe "github.com/dariomatias/vendora-backend/pkg/stripe"
)

const (
	shutdownTimeout = 15 * time.Second
	webhookGuardTTL = 24 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	gateway, err := payments.NewStripeGateway(stripeClient, cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	cartRepo := cart.NewRepository(gormDB)
	catalogRepo := catalog.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	paymentsRepo := payments.NewRepository(gormDB)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	inventoryService, err := inventory.NewService(inventory.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}
	reservationService, err := reservation.NewService(reservation.NewRepository(gormDB), inventoryService)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:   ordersRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Holds:  reservationService,
		Stock:  inventoryService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Tx:       dbClient,
		CartRepo: cartRepo,
		Catalog:  catalogRepo,
		Orders:   ordersRepo,
		Payments: paymentsRepo,
		Gateway:  gateway,
		Holds:    reservationService,
		Outbox:   outboxService,
		Config:   cfg.Checkout,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}
	webhookService, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Tx:           dbClient,
		PaymentsRepo: paymentsRepo,
		OrdersRepo:   ordersRepo,
		Orders:       ordersService,
		Holds:        reservationService,
		CartRepo:     cartRepo,
		Outbox:       outboxService,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook reconciler", err)
		os.Exit(1)
	}
	webhookGuard, err := paymentwebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, "payment-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	handler := routes.NewRouter(routes.Params{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Registry:       registry,
		Checkout:       checkoutService,
		Orders:         ordersService,
		Inventory:      inventoryService,
		Gateway:        gateway,
		WebhookService: webhookService,
		WebhookGuard:   webhookGuard,
		WebhookMetrics: webhookMetrics,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
