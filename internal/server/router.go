// internal/server/router.go
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Routes is implemented by every module handler mounted on the router.
type Routes interface {
	RegisterRoutes(r chi.Router)
}

type Options struct {
	CORSOrigins   []string
	RateLimit     bool
	RatePerSecond float64
	RateBurst     int
	HealthDetails func() map[string]string
}

// NewRouter assembles the middleware chain and mounts handlers.
func NewRouter(logger zerolog.Logger, opts Options, handlers ...Routes) chi.Router {
	logger = logger.With().Str("component", "http").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		MaxAge:         86400,
	}).Handler)
	if opts.RateLimit {
		r.Use(NewRateLimiter(opts.RatePerSecond, opts.RateBurst).LimitMutations(logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if opts.HealthDetails != nil {
			for k, v := range opts.HealthDetails() {
				body[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})

	for _, h := range handlers {
		h.RegisterRoutes(r)
	}
	return r
}
