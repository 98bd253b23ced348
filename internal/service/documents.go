package service

import (
	"context"
	"log/slog"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/document"
)

// IndexDocument transforms a source document against the index mapping and
// stores the result under the given id. Re-indexing an existing id replaces
// the stored document.
func (s *SearchService) IndexDocument(ctx context.Context, index, docType, id string, raw map[string]any) error {
	if id == "" {
		return apperrors.InvalidInput("document id is required")
	}
	if len(raw) == 0 {
		return apperrors.InvalidInput("document body is required")
	}

	m, err := s.mapping(ctx, index, docType)
	if err != nil {
		return err
	}

	transformed := document.Transform(m, raw)
	if err := s.engine.Index(ctx, index, id, transformed); err != nil {
		return engineError("index document", err)
	}

	s.logger.InfoContext(ctx, "document indexed",
		slog.String("index", index),
		slog.String("document_id", id),
	)
	return nil
}

// FetchDocument returns the stored, transformed form of a document.
func (s *SearchService) FetchDocument(ctx context.Context, index, id string) (map[string]any, error) {
	doc, err := s.engine.Get(ctx, index, id)
	if err != nil {
		return nil, engineError("fetch document", err)
	}
	return doc, nil
}

// DeleteDocument removes a document from the index.
func (s *SearchService) DeleteDocument(ctx context.Context, index, id string) error {
	if err := s.engine.Delete(ctx, index, id); err != nil {
		return engineError("delete document", err)
	}

	s.logger.InfoContext(ctx, "document deleted",
		slog.String("index", index),
		slog.String("document_id", id),
	)
	return nil
}
