package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"dropship-rest-api/internal/handler"
	"dropship-rest-api/internal/metrics"
	"dropship-rest-api/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ProductHandler *handler.ProductHandler
	ImportHandler  *handler.ImportHandler
	UsageHandler   *handler.UsageHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
	AllowedOrigins []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// PUBLIC routes (no auth required)
		if cfg.Handler != nil {
			r.Get("/status", cfg.Handler.Status)
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		// Admin endpoints are guarded by X-Login-Key instead of user tokens
		if cfg.AdminHandler != nil {
			r.With(cfg.AdminHandler.RequireLoginKey).Get("/admin/stats", cfg.AdminHandler.GetStats)
			r.With(cfg.AdminHandler.RequireLoginKey).Delete("/admin/cache", cfg.AdminHandler.ClearCache)
		}

		// AUTHENTICATED routes
		r.Group(func(r chi.Router) {
			if cfg.AuthMiddleware != nil {
				r.Use(cfg.AuthMiddleware)
			}

			if cfg.ProductHandler != nil {
				r.Route("/products", func(r chi.Router) {
					r.Get("/search", cfg.ProductHandler.Search)
					r.Get("/winning", cfg.ProductHandler.Winning)
					r.Get("/{id}", cfg.ProductHandler.Get)
					r.Post("/{id}/analyze", cfg.ProductHandler.Analyze)
					r.Post("/{id}/import", cfg.ProductHandler.Import)
				})
			}

			if cfg.ImportHandler != nil {
				r.Get("/imports", cfg.ImportHandler.List)
				r.Patch("/imports/{id}", cfg.ImportHandler.UpdateStatus)
			}

			if cfg.UsageHandler != nil {
				r.Get("/usage", cfg.UsageHandler.Get)
			}
		})
	})

	return r
}
