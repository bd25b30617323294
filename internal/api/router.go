// Package api serves the recommendation service over HTTP using the chi
// router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marco/cinematch/internal/history"
	"github.com/marco/cinematch/internal/service"
)

// Config holds the router's collaborators and middleware settings.
type Config struct {
	Service *service.Service
	Users   history.Credentials

	// CORSOrigins lists allowed origins. Empty disables cross-origin access.
	CORSOrigins []string
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int
}

// Server holds handler state.
type Server struct {
	svc   *service.Service
	users history.Credentials
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) http.Handler {
	s := &Server{svc: cfg.Service, users: cfg.Users}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))
	r.Use(instrument)

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
		}

		r.Post("/users", s.RegisterUser)

		r.Group(func(r chi.Router) {
			r.Use(s.basicAuth)

			r.Get("/recommendations", s.Recommendations)
			r.Get("/movies/search", s.SearchMovies)
			r.Get("/movies/{id}", s.MovieDetails)
			r.Get("/discover/year/{year}", s.DiscoverYear)
			r.Get("/discover/genres", s.DiscoverGenres)
			r.Get("/genres", s.Genres)
			r.Get("/genres/{name}/representative", s.GenreRepresentative)
			r.Get("/history", s.History)
			r.Get("/history/genres", s.GenreHistory)
		})
	})

	return r
}
