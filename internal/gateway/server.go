package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.metrics.middleware)

	// Public.
	r.Get("/health", g.handleHealth())
	if g.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if g.config.BearerToken != "" {
			r.Use(authMiddleware(g.config.BearerToken))
		}
		r.Get("/status", g.handleStatus())
		r.Route("/api", func(r chi.Router) {
			if g.deps.Tasks != nil {
				r.Get("/tasks", g.handleListTasks())
			}
			if g.deps.Tasks != nil && g.deps.Scheduler != nil {
				r.Delete("/tasks/{group}/{resource}", g.handleDeleteTask())
			}
			if g.deps.Sweep != nil {
				r.Post("/sweep", g.handleSweep())
			}
		})
	})

	return r
}
