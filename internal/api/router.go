package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/api/middleware"
	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
	"github.com/ChannovDenis/dobro20-sub000/internal/handlers"
)

// maxBodyBytes leaves room for data-URI photos.
const maxBodyBytes = 1 << 20

// Options configures the router.
type Options struct {
	Verifier  auth.Verifier
	RateLimit middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps handlers.Deps, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	var redisClient *redis.Client
	if deps.Redis != nil {
		redisClient = deps.Redis.Client()
	}
	limiter := middleware.NewRateLimiter(redisClient, logger, opts.RateLimit)
	r.Use(limiter.Middleware)

	// CORS - browsers call the relay endpoints from any tenant origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"POST", "GET", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"authorization", "x-client-info", "apikey", "content-type", "x-session-id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(deps)
	authn := middleware.NewAuthMiddleware(opts.Verifier, deps.DB, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/tenant", h.GetTenant)
	r.Get("/tenants/{slug}", h.GetTenantBySlug)

	// Bearer or session header required
	r.Group(func(r chi.Router) {
		r.Use(authn.RequireCaller)

		r.Post("/chat", h.Chat)
		r.Post("/lisa-stylist", h.LisaStylist)
		r.Post("/colortype-analyzer", h.ColorTypeAnalyzer)
		r.Post("/virtual-tryon", h.VirtualTryOn)

		r.Get("/topics", h.ListTopics)
		r.Post("/topics", h.CreateTopic)
		r.Get("/topics/{id}", h.GetTopic)
		r.Patch("/topics/{id}", h.UpdateTopic)
		r.Delete("/topics/{id}", h.DeleteTopic)
		r.Get("/topics/{id}/messages", h.ListTopicMessages)
		r.Post("/topics/{id}/messages", h.PostTopicMessage)

		r.With(authn.RequireRole("admin")).Get("/admin/stats", h.AdminStats)
	})

	return r
}
