package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dariomatias/vendora-backend/api/controllers"
	ordercontrollers "github.com/dariomatias/vendora-backend/api/controllers/orders"
	webhookcontrollers "github.com/dariomatias/vendora-backend/api/controllers/webhooks"
	"github.com/dariomatias/vendora-backend/api/middleware"
	checkoutsvc "github.com/dariomatias/vendora-backend/internal/checkout"
	"github.com/dariomatias/vendora-backend/internal/inventory"
	"github.com/dariomatias/vendora-backend/internal/orders"
	"github.com/dariomatias/vendora-backend/internal/payments"
	paymentwebhook "github.com/dariomatias/vendora-backend/internal/webhooks/payment"
	"github.com/dariomatias/vendora-backend/pkg/config"
	"github.com/dariomatias/vendora-backend/pkg/db"
	"github.com/dariomatias/vendora-backend/pkg/logger"
	"github.com/dariomatias/vendora-backend/pkg/metrics"
	"github.com/dariomatias/vendora-backend/pkg/redis"
)

// Params bundle everything the HTTP surface depends on.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	Registry *prometheus.Registry

	Checkout  checkoutsvc.Service
	Orders    orders.Service
	Inventory inventory.Service

	Gateway        payments.Gateway
	WebhookService *paymentwebhook.Service
	WebhookGuard   *paymentwebhook.IdempotencyGuard
	WebhookMetrics *metrics.WebhookMetrics
}

func NewRouter(p Params) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DB, p.Redis))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.PaymentWebhook(p.WebhookService, p.Gateway, p.WebhookGuard, p.WebhookMetrics, p.Logger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.BuyerContext(p.Logger))

			r.Post("/checkout", controllers.Checkout(p.Checkout, p.Logger))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.BuyerList(p.Orders, p.Logger))
				r.Get("/{orderId}", ordercontrollers.BuyerDetail(p.Orders, p.Logger))
				r.Post("/{orderId}/status", ordercontrollers.BuyerTransition(p.Orders, p.Logger))
			})
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.StoreContext(p.Logger))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.StoreList(p.Orders, p.Logger))
				r.Get("/{orderId}", ordercontrollers.StoreDetail(p.Orders, p.Logger))
				r.Post("/{orderId}/status", ordercontrollers.StoreTransition(p.Orders, p.Logger))
			})
			r.Route("/inventory", func(r chi.Router) {
				r.Get("/{variantId}", controllers.InventoryAvailability(p.Inventory, p.Logger))
				r.Post("/{variantId}/restock", controllers.InventoryRestock(p.Inventory, p.Logger))
			})
		})
	})

	return r
}
