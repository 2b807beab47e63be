package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-session/api/controllers"
	"github.com/angelmondragon/storefront-session/api/middleware"
	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
)

// RouterParams groups the collaborators the HTTP surface is wired from.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Sessions middleware.SessionSource
	// Limiter backs the promo code rate limit; nil disables it.
	Limiter  middleware.RateLimiterStore
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics
	// Ready lists the dependencies /health/ready pings.
	Ready map[string]controllers.Pinger
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(params.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	promoPolicy := middleware.NewRateLimitPolicy(
		"promo",
		cfg.RateLimit.PromoWindow,
		cfg.RateLimit.PromoIPLimit,
		cfg.RateLimit.PromoSessionLimit,
	).WithTrustedProxy(cfg.RateLimit.TrustForwardedFor)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Ready))
	})
	r.Handle("/metrics", metrics.Handler(params.Gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.GuestSession(cfg.Session, params.Sessions, logg))
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(logg))
			r.Delete("/", controllers.CartClear(logg))
			r.Post("/items", controllers.CartAddItem(logg))
			r.Patch("/items/{cartId}", controllers.CartUpdateItem(logg))
			r.Delete("/items/{cartId}", controllers.CartRemoveItem(logg))
			r.With(middleware.RateLimit(promoPolicy, params.Limiter, logg)).Post("/promocode", controllers.CartApplyPromocode(logg))
			r.Delete("/promocode", controllers.CartRemovePromocode(logg))
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.WishlistFetch(logg))
			r.Post("/toggle", controllers.WishlistToggle(logg))
			r.Get("/{productId}", controllers.WishlistContains(logg))
		})

		r.Get("/notifications", controllers.ListNotifications(logg))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", controllers.SessionInfo(logg))
			r.Post("/logout", controllers.SessionLogout(logg))
		})
	})

	return r
}
