// Package api provides the HTTP API of the rotabus gateway.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/handler"
	"github.com/rotabus/rotabus/internal/api/middleware"
	"github.com/rotabus/rotabus/internal/destinations"
	"github.com/rotabus/rotabus/internal/lines"
	"github.com/rotabus/rotabus/internal/provider/resilience"
	"github.com/rotabus/rotabus/internal/routing"
	"github.com/rotabus/rotabus/internal/search"
	"github.com/rotabus/rotabus/internal/session"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Sessions     *session.Service
	Destinations *destinations.Service
	Search       *search.Service
	Lines        *lines.Service
	Routes       *routing.Service

	// Publisher queues position refreshes for the worker. Nil refreshes inline.
	Publisher handler.RefreshPublisher

	StoreName string
	Store     handler.Pinger
	Registry  *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "rotabus-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // Reject non-JSON bodies

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		StoreName: cfg.StoreName,
		Store:     cfg.Store,
		Registry:  cfg.Registry,
	})
	authHandler := handler.NewAuthHandler(cfg.Sessions, cfg.Logger)
	meHandler := handler.NewMeHandler(cfg.Sessions, cfg.Destinations, cfg.Search, cfg.Logger)
	directionsHandler := handler.NewDirectionsHandler(cfg.Destinations, cfg.Logger)
	linesHandler := handler.NewLinesHandler(cfg.Lines, cfg.Publisher, cfg.Logger)
	routesHandler := handler.NewRoutesHandler(cfg.Routes, cfg.Logger)
	searchHandler := handler.NewSearchHandler(cfg.Search, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Sessions)

	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)             // 10 req/min per IP
	expensiveRateLimit := middleware.RateLimitByUser(middleware.ExpensiveRateLimit) // 30 req/min per user
	standardRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit)   // 100 req/min per user

	r.Route("/v1", func(r chi.Router) {
		// Auth endpoints (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit)
			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
		})

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Everything else acts on behalf of the signed-in user.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)

			// Route search and forced refreshes hit the backend on every cache miss.
			r.With(expensiveRateLimit).Get("/routes", routesHandler.SearchRoutes)
			r.With(expensiveRateLimit).Post("/lines:refresh", linesHandler.RefreshLines)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)

				r.Route("/me", func(r chi.Router) {
					r.Get("/", meHandler.GetMe)
					r.Get("/profile", meHandler.GetProfile)
					r.Post("/logout", meHandler.Logout)
					r.Delete("/data", meHandler.DeleteData)
				})

				r.Route("/directions", func(r chi.Router) {
					r.Get("/", directionsHandler.GetDirections)
					r.Put("/{kind}", directionsHandler.SetDestination)
				})

				r.Get("/lines", linesHandler.ListLines)

				r.Route("/search", func(r chi.Router) {
					r.Get("/recents", searchHandler.ListRecents)
					r.Post("/recents", searchHandler.AddRecent)
					r.Post("/recents/{id}:toggle-favorite", searchHandler.ToggleRecent)
					r.Get("/favorites", searchHandler.ListFavorites)
					r.Post("/favorites/{id}:toggle", searchHandler.ToggleFavorite)
				})
			})
		})
	})

	return r
}
