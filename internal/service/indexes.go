package service

import (
	"context"
	"log/slog"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/response"
)

// CreateIndex creates an index from a named local schema definition.
func (s *SearchService) CreateIndex(ctx context.Context, index, definitionName string) error {
	definition, err := mapping.LoadDefinition(s.definitionsDir, definitionName)
	if err != nil {
		return err
	}

	if err := s.engine.CreateIndex(ctx, index, definition); err != nil {
		return engineError("create index", err)
	}
	s.mappings.Invalidate(index)

	s.logger.InfoContext(ctx, "index created",
		slog.String("index", index),
		slog.String("definition", definitionName),
	)
	return nil
}

// DeleteIndex removes an index and drops its cached mapping.
func (s *SearchService) DeleteIndex(ctx context.Context, index string) error {
	if err := s.engine.DeleteIndex(ctx, index); err != nil {
		return engineError("delete index", err)
	}
	s.mappings.Invalidate(index)

	s.logger.InfoContext(ctx, "index deleted", slog.String("index", index))
	return nil
}

// UpdateAlias points an alias at a new target index. The alias's previously
// cached mapping no longer applies and is dropped.
func (s *SearchService) UpdateAlias(ctx context.Context, alias, target string) error {
	if err := s.engine.UpdateAlias(ctx, alias, target); err != nil {
		return engineError("update alias", err)
	}
	s.mappings.Invalidate(alias)

	s.logger.InfoContext(ctx, "alias updated",
		slog.String("alias", alias),
		slog.String("target", target),
	)
	return nil
}

// RefreshIndex makes recent writes visible to search immediately.
func (s *SearchService) RefreshIndex(ctx context.Context, index string) error {
	if err := s.engine.Refresh(ctx, index); err != nil {
		return engineError("refresh index", err)
	}
	return nil
}

// IndexStatus reports the externally visible status of one index.
func (s *SearchService) IndexStatus(ctx context.Context, index string) (map[string]any, error) {
	stats, err := s.engine.Stats(ctx, index)
	if err != nil {
		return nil, engineError("fetch index stats", err)
	}
	info, err := s.engine.Info(ctx, index)
	if err != nil {
		return nil, engineError("fetch index info", err)
	}
	return response.ConvertStatus(concreteIndexName(info, index), stats, info), nil
}

// AllIndexStatuses reports the status of every index, keyed by concrete
// index name.
func (s *SearchService) AllIndexStatuses(ctx context.Context) (map[string]any, error) {
	stats, err := s.engine.Stats(ctx, "_all")
	if err != nil {
		return nil, engineError("fetch index stats", err)
	}
	info, err := s.engine.Info(ctx, "_all")
	if err != nil {
		return nil, engineError("fetch index info", err)
	}

	statuses := make(map[string]any, len(info))
	for index := range info {
		statuses[index] = response.ConvertStatus(index, stats, info)
	}
	return statuses, nil
}

// concreteIndexName maps an alias to the concrete index name the info
// document is keyed by.
func concreteIndexName(info map[string]any, requested string) string {
	if _, ok := info[requested]; ok {
		return requested
	}
	for name := range info {
		return name
	}
	return requested
}
