package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	AllowedOrigins []string
	RequestsPerSec float64
	Burst          int
	Timeout        time.Duration
}

// NewRouter mounts the handlers under /api/v1 with the shared middleware stack.
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		if opts.RequestsPerSec > 0 {
			r.Use(NewClientLimiter(opts.RequestsPerSec, opts.Burst).Middleware)
		}

		r.Route("/affiliate", func(r chi.Router) {
			r.Post("/links", h.GenerateLink)
			r.Get("/platforms", h.ListPlatforms)
		})

		r.Post("/extract", h.Extract)

		if h.catalog != nil {
			r.Route("/products/{id}", func(r chi.Router) {
				r.Get("/", h.GetProduct)
				r.Get("/buy", h.BuyProduct)
			})
		}
	})

	return r
}
