package routes

import (
	"crypto/ed25519"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/guildmarket/api/controllers"
	"github.com/angelmondragon/guildmarket/api/middleware"
	"github.com/angelmondragon/guildmarket/internal/orders"
	"github.com/angelmondragon/guildmarket/internal/stats"
	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	"github.com/angelmondragon/guildmarket/pkg/logger"
	"github.com/angelmondragon/guildmarket/pkg/metrics"
)

// Dependencies are the collaborators the HTTP surface needs.
type Dependencies struct {
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTPMetrics
	Interactions controllers.InteractionHandler
	VerifyKey    ed25519.PublicKey
	Stats        stats.Service
	Orders       orders.Repository
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.With(middleware.DiscordSignature(deps.VerifyKey, logg)).
		Post("/discord/interactions", controllers.DiscordInteractions(deps.Interactions, logg))

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.AdminPing())

		// stats are aggregate only; order rows carry delivery locations
		r.With(middleware.RequireRole(logg, enums.MemberRoleAdmin, enums.MemberRoleViewer)).
			Get("/v1/stats", controllers.AdminStats(deps.Stats, logg))
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin))
			r.Get("/v1/orders/{orderId}", controllers.AdminOrderDetail(deps.Orders, logg))
			r.Get("/v1/customers/{customerId}/orders", controllers.AdminCustomerOrders(deps.Orders, logg))
			r.Get("/v1/suppliers/{supplierId}/orders", controllers.AdminSupplierOrders(deps.Orders, logg))
		})
	})

	return r
}
