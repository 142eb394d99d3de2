package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tastybites/storefront/internal/session"
	"github.com/tastybites/storefront/pkg/health"
	"github.com/tastybites/storefront/pkg/middleware"
)

// serviceName labels metrics and spans.
const serviceName = "cart"

// RouterConfig holds everything the router mounts.
type RouterConfig struct {
	Sessions      *session.Manager
	Health        *health.Handler
	Tokens        middleware.TokenValidator
	SignInLimiter *middleware.RateLimiter
	CORS          middleware.CORSConfig
	Session       middleware.SessionConfig
	PprofCIDRs    []string
	// PprofEnabled mounts /debug/pprof behind the CIDR allowlist.
	PprofEnabled bool
}

// NewRouter creates a chi router with all cart service routes registered.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	cartHandler := NewCartHandler(cfg.Sessions, logger)
	sessionHandler := NewSessionHandler(cfg.Sessions, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(cfg.Session))
		r.Use(middleware.Tracing(serviceName))
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.Tokens))

			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/sync", cartHandler.SyncCart)

			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{id}", cartHandler.UpdateItemQuantity)
			r.Delete("/items/{id}", cartHandler.RemoveItem)
		})

		r.Route("/session", func(r chi.Router) {
			if cfg.SignInLimiter != nil {
				r.Use(cfg.SignInLimiter.Middleware(logger))
			}

			r.With(middleware.Auth(cfg.Tokens)).Post("/sign-in", sessionHandler.SignIn)
			r.Post("/sign-out", sessionHandler.SignOut)
		})
	})

	return r
}
