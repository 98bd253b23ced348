package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/health"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/middleware"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/service"
)

// NewRouter creates a chi router with all search API routes registered.
// authTokens guards every route except health and metrics.
func NewRouter(
	searchService *service.SearchService,
	healthHandler *health.Handler,
	authTokens []string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("search-api"))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	searchHandler := NewSearchHandler(searchService, logger)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(authTokens))

		r.Get("/", searchHandler.Root)
		r.Get("/_status", searchHandler.AllIndexStatuses)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Put("/aliases/{alias}", searchHandler.UpdateAlias)
		})

		r.Route("/{index}", func(r chi.Router) {
			r.Get("/", searchHandler.IndexStatus)
			r.Delete("/", searchHandler.DeleteIndex)
			r.Post("/refresh", searchHandler.RefreshIndex)

			r.Group(func(r chi.Router) {
				r.Use(ContentTypeJSON)
				r.Put("/", searchHandler.CreateIndex)
			})

			r.Route("/{docType}", func(r chi.Router) {
				r.Get("/search", searchHandler.Search)
				r.Get("/aggregations", searchHandler.Aggregations)
				r.Get("/{id}", searchHandler.FetchDocument)
				r.Delete("/{id}", searchHandler.DeleteDocument)

				r.Group(func(r chi.Router) {
					r.Use(ContentTypeJSON)
					r.Put("/{id}", searchHandler.IndexDocument)
				})
			})
		})
	})

	return r
}
