package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/httputil"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/validator"
)

// IndexDocumentRequest is the JSON request body for indexing a document.
type IndexDocumentRequest struct {
	Document map[string]any `json:"document" validate:"required,min=1"`
}

// IndexDocument handles PUT /{index}/{docType}/{id}
func (h *SearchHandler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	var req IndexDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("request body must be valid JSON"), h.logger)
		return
	}
	if err := validator.Validate(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	index := chi.URLParam(r, "index")
	id := chi.URLParam(r, "id")
	err := h.service.IndexDocument(r.Context(), index, chi.URLParam(r, "docType"), id, req.Document)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "acknowledged",
	})
}

// FetchDocument handles GET /{index}/{docType}/{id}
func (h *SearchHandler) FetchDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.FetchDocument(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"document": doc,
	})
}

// DeleteDocument handles DELETE /{index}/{docType}/{id}
func (h *SearchHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteDocument(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "acknowledged",
	})
}
