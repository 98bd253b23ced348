package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/query"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/response"
)

// Search runs a paginated keyword-and-filter search against an index.
// Parameters arrive as the raw query-string values; the caller never builds
// engine DSL itself.
func (s *SearchService) Search(ctx context.Context, index, docType string, params url.Values) (*response.Results, error) {
	return s.run(ctx, index, docType, params, nil)
}

// Aggregations runs a bucket-count query over the named aggregatable fields
// under the same keyword and filter semantics as Search.
func (s *SearchService) Aggregations(ctx context.Context, index, docType string, params url.Values, fields []string) (*response.Results, error) {
	if len(fields) == 0 {
		return nil, apperrors.InvalidInput("at least one aggregation field is required")
	}
	return s.run(ctx, index, docType, params, fields)
}

func (s *SearchService) run(ctx context.Context, index, docType string, params url.Values, aggregations []string) (*response.Results, error) {
	m, err := s.mapping(ctx, index, docType)
	if err != nil {
		return nil, err
	}

	req, err := query.ParseRequest(params, aggregations)
	if err != nil {
		return nil, err
	}

	body, err := query.Build(m, req, query.Options{
		PageSize:         s.pageSize,
		IDOnlyMultiplier: s.idOnlyMultiplier,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.engine.Search(ctx, index, body)
	if err != nil {
		if engine.IsResultWindowTooLarge(err) {
			return nil, s.resolveWindowOverflow(ctx, index, m, req, err)
		}
		return nil, engineError("execute search", err)
	}

	if err := s.checkPageExists(resp, req); err != nil {
		return nil, err
	}

	results := response.ConvertResults(m, resp, req, s.effectivePageSize(req))
	repairHighlights(m, results)

	s.logger.DebugContext(ctx, "search executed",
		slog.String("index", index),
		slog.Int("total", resp.Total),
		slog.Int("took", resp.Took),
	)
	return results, nil
}

// resolveWindowOverflow disambiguates the engine refusing a deep page: a
// page beyond the actual result set is the client's mistake, while a result
// set genuinely deeper than the engine's window is ours. A count query over
// the same criteria tells the two apart.
func (s *SearchService) resolveWindowOverflow(ctx context.Context, index string, m *mapping.Mapping, req *query.Request, searchErr error) error {
	countBody, err := query.Build(m, req, query.Options{})
	if err != nil {
		return err
	}
	total, err := s.engine.Count(ctx, index, countBody)
	if err != nil {
		return engineError("count search results", err)
	}
	if total <= s.pageOffset(req) {
		return pageNotFound(req)
	}
	// The page exists but sits beyond the engine's result window. That is
	// an operational limit, not the client's mistake.
	return apperrors.Internal(searchErr.Error(), searchErr)
}

// checkPageExists rejects a requested page past the end of the result set.
// The engine happily serves an empty page inside its result window; callers
// get a not-found instead.
func (s *SearchService) checkPageExists(resp *engine.SearchResponse, req *query.Request) error {
	if len(resp.Hits) == 0 && s.pageOffset(req) > 0 {
		return pageNotFound(req)
	}
	return nil
}

// effectivePageSize is the page size actually sent to the engine, including
// the idOnly multiplier. Pagination offsets and links use the same number.
func (s *SearchService) effectivePageSize(req *query.Request) int {
	size := s.pageSize
	if req.IDOnly && s.idOnlyMultiplier > 1 {
		size *= s.idOnlyMultiplier
	}
	return size
}

func (s *SearchService) pageOffset(req *query.Request) int {
	if req.Page <= 1 {
		return 0
	}
	return (req.Page - 1) * s.effectivePageSize(req)
}

func pageNotFound(req *query.Request) error {
	return apperrors.NotFound(fmt.Sprintf("%s does not exist for this search", req.PageLabel()))
}

// repairHighlights replaces highlight fragments that carry no highlight
// markup with the HTML-escaped full field value. The engine's no-match
// fragments are length-truncated and would otherwise surface a clipped,
// unescaped snippet.
func repairHighlights(m *mapping.Mapping, results *response.Results) {
	for _, doc := range results.Documents {
		highlight, ok := doc["highlight"].(map[string][]string)
		if !ok {
			continue
		}
		for field, fragments := range highlight {
			if len(fragments) != 1 || strings.Contains(fragments[0], query.HighlightPreTag) {
				continue
			}
			full, ok := doc[field].(string)
			if !ok {
				continue
			}
			highlight[field] = []string{escapeHTML(full)}
		}
	}
}

// escapeHTML matches the engine's "html" highlight encoder, which also
// escapes forward slashes.
func escapeHTML(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "/", "&#x2F;")
}
