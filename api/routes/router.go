package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/closetapp/marketplace-backend/api/controllers"
	listingcontrollers "github.com/closetapp/marketplace-backend/api/controllers/listings"
	ordercontrollers "github.com/closetapp/marketplace-backend/api/controllers/orders"
	"github.com/closetapp/marketplace-backend/api/middleware"
	"github.com/closetapp/marketplace-backend/internal/listings"
	"github.com/closetapp/marketplace-backend/internal/orders"
	"github.com/closetapp/marketplace-backend/internal/purchase"
	"github.com/closetapp/marketplace-backend/pkg/config"
	"github.com/closetapp/marketplace-backend/pkg/db"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	"github.com/closetapp/marketplace-backend/pkg/logger"
	"github.com/closetapp/marketplace-backend/pkg/metrics"
	"github.com/closetapp/marketplace-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	httpMetrics *metrics.HTTPMetrics,
	gatherer prometheus.Gatherer,
	listingService listings.Service,
	purchaseService purchase.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	var idempotencyStore redis.IdempotencyStore
	readyDeps := map[string]controllers.Pinger{}
	if dbP != nil {
		readyDeps["db"] = dbP
	}
	if redisClient != nil {
		idempotencyStore = redisClient
		readyDeps["redis"] = redisClient
	}
	idempotent := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", listingcontrollers.List(listingService, logg))
			r.With(idempotent).Post("/", listingcontrollers.Create(listingService, logg))
			r.Get("/{listingId}", listingcontrollers.Detail(listingService, logg))
			r.Patch("/{listingId}/status", listingcontrollers.ChangeStatus(listingService, logg))
			r.Delete("/{listingId}", listingcontrollers.Delete(listingService, logg))
			r.With(idempotent).Post("/{listingId}/purchase", listingcontrollers.Purchase(purchaseService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.With(idempotent).Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersService, logg))
			r.With(middleware.RequireRole(enums.UserRoleOperator, logg), idempotent).
				Post("/{orderId}/confirm-payment", ordercontrollers.ConfirmPayment(ordersService, logg))
		})
	})

	return r
}
