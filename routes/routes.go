package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/llm-gateway/app"
)

// New builds the HTTP router: public health endpoints, the metrics scrape
// endpoint, and the authenticated gateway API.
func New(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(deps.Config.Server.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Debug", "X-Dry-Run", "X-Provider-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", deps.HealthHandler.Health)

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Authenticator.Middleware)

		r.Post("/v1/chat/completions", deps.ChatHandler.Completions)
		r.Get("/v1/status", deps.HealthHandler.Status)
		r.Get("/v1/budgets", deps.BudgetHandler.List)
		r.Post("/v1/budgets/{id}/reset", deps.BudgetHandler.Reset)
	})

	return r
}
