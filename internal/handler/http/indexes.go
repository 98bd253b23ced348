package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/httputil"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/validator"
)

// CreateIndexRequest is the JSON request body for creating an index from a
// named schema definition.
type CreateIndexRequest struct {
	Definition string `json:"definition" validate:"required"`
}

// UpdateAliasRequest is the JSON request body for pointing an alias at an
// index.
type UpdateAliasRequest struct {
	Target string `json:"target" validate:"required"`
}

// CreateIndex handles PUT /{index}
func (h *SearchHandler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	var req CreateIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("request body must be valid JSON"), h.logger)
		return
	}
	if err := validator.Validate(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	if err := h.service.CreateIndex(r.Context(), chi.URLParam(r, "index"), req.Definition); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"message": "acknowledged",
	})
}

// DeleteIndex handles DELETE /{index}
func (h *SearchHandler) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteIndex(r.Context(), chi.URLParam(r, "index")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "acknowledged",
	})
}

// UpdateAlias handles PUT /aliases/{alias}
func (h *SearchHandler) UpdateAlias(w http.ResponseWriter, r *http.Request) {
	var req UpdateAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("request body must be valid JSON"), h.logger)
		return
	}
	if err := validator.Validate(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	if err := h.service.UpdateAlias(r.Context(), chi.URLParam(r, "alias"), req.Target); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "acknowledged",
	})
}

// RefreshIndex handles POST /{index}/refresh
func (h *SearchHandler) RefreshIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshIndex(r.Context(), chi.URLParam(r, "index")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "acknowledged",
	})
}

// IndexStatus handles GET /{index}
func (h *SearchHandler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.IndexStatus(r.Context(), chi.URLParam(r, "index"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": status,
	})
}

// AllIndexStatuses handles GET /_status
func (h *SearchHandler) AllIndexStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.service.AllIndexStatuses(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": statuses,
	})
}
