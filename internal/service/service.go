package service

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
)

// SearchService implements the business logic in front of the search
// engine: compiling requests against the index mapping, transforming
// documents for ingestion and translating raw engine responses.
type SearchService struct {
	engine   engine.SearchEngine
	mappings *mapping.Cache
	logger   *slog.Logger

	pageSize         int
	idOnlyMultiplier int
	definitionsDir   string
}

// Config carries the tunables of the service.
type Config struct {
	// PageSize is the fixed number of results per page.
	PageSize int

	// IDOnlyMultiplier scales the page size for idOnly searches.
	IDOnlyMultiplier int

	// DefinitionsDir holds the JSON index schema definitions used when
	// creating indexes.
	DefinitionsDir string
}

// NewSearchService creates a new search service.
func NewSearchService(eng engine.SearchEngine, mappings *mapping.Cache, cfg Config, logger *slog.Logger) *SearchService {
	return &SearchService{
		engine:           eng,
		mappings:         mappings,
		logger:           logger,
		pageSize:         cfg.PageSize,
		idOnlyMultiplier: cfg.IDOnlyMultiplier,
		definitionsDir:   cfg.DefinitionsDir,
	}
}

func (s *SearchService) mapping(ctx context.Context, index, docType string) (*mapping.Mapping, error) {
	return s.mappings.Get(ctx, index, docType)
}

// engineError normalizes a search engine failure into the application error
// taxonomy. Semantic engine errors keep their normalized summary; transport
// failures become opaque internal errors.
func engineError(op string, err error) error {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		switch {
		case engErr.StatusCode == 404:
			return apperrors.NotFound(engErr.Error())
		case engErr.StatusCode >= 400 && engErr.StatusCode < 500:
			return apperrors.InvalidInput(engErr.Error())
		}
		return apperrors.Internal(engErr.Error(), err)
	}
	return apperrors.Internal(op, err)
}
