package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/httputil"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/service"
)

// SearchHandler handles HTTP requests for search, ingestion and index
// administration.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// Root handles GET /
//
// Lists the URL templates of the resources below the root, in the manner of
// the other marketplace APIs.
func (h *SearchHandler) Root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"links": map[string]string{
			"query.keyword-search": "/{index}/{docType}/search",
			"query.aggregations":   "/{index}/{docType}/aggregations",
			"documents.fetch":      "/{index}/{docType}/{id}",
			"indexes.status":       "/_status",
		},
	})
}

// Search handles GET /{index}/{docType}/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Search(r.Context(),
		chi.URLParam(r, "index"), chi.URLParam(r, "docType"), r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}

// Aggregations handles GET /{index}/{docType}/aggregations
//
// The fields to bucket over come from repeated aggregations parameters.
func (h *SearchHandler) Aggregations(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	fields := params["aggregations"]
	if len(fields) == 0 {
		httputil.WriteError(w, r,
			apperrors.InvalidInput("the aggregations parameter is required"), h.logger)
		return
	}
	params.Del("aggregations")

	results, err := h.service.Aggregations(r.Context(),
		chi.URLParam(r, "index"), chi.URLParam(r, "docType"), params, fields)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}
