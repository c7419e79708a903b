package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keylock-io/keylock/api/controllers"
	"github.com/keylock-io/keylock/api/middleware"
	"github.com/keylock-io/keylock/internal/licensing"
	"github.com/keylock-io/keylock/pkg/config"
	"github.com/keylock-io/keylock/pkg/logger"
	"github.com/keylock-io/keylock/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store licensing.Store,
	redisClient *redis.Client,
	licenseService licensing.Service,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		if redisClient != nil {
			r.Get("/ready", controllers.HealthReady(cfg, logg, store, redisClient))
		} else {
			r.Get("/ready", controllers.HealthReady(cfg, logg, store, nil))
		}
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())

		validate := controllers.LicenseValidate(licenseService, logg)
		if redisClient != nil {
			policy := middleware.NewValidateRateLimitPolicy(
				cfg.RateLimit.ValidateWindow,
				cfg.RateLimit.ValidateIPLimit,
				cfg.RateLimit.ValidateKeyLimit,
			)
			r.With(middleware.ValidateRateLimit(policy, redisClient, logg)).Post("/licenses/validate", validate)
		} else {
			r.Post("/licenses/validate", validate)
		}
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Post("/licenses", controllers.LicenseGenerate(licenseService, logg))
		r.Post("/licenses/bulk", controllers.LicenseBulkGenerate(licenseService, logg))
		r.Get("/licenses/status", controllers.LicenseStatus(licenseService, logg))
	})

	return r
}
