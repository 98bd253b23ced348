package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SearchEngine is the contract with the backing document search engine.
// Queries are the engine's native DSL, built by the query compiler as
// generic JSON documents. Implementations exist for Elasticsearch and for
// an in-memory double used in tests.
type SearchEngine interface {
	// Search executes a compiled query and returns the raw hits.
	Search(ctx context.Context, index string, query map[string]any) (*SearchResponse, error)

	// Count executes a compiled count-only query and returns the number of
	// matching documents.
	Count(ctx context.Context, index string, query map[string]any) (int, error)

	// Get fetches a single stored document by id.
	Get(ctx context.Context, index, id string) (map[string]any, error)

	// Delete removes a single document by id.
	Delete(ctx context.Context, index, id string) error

	// Index adds or replaces a single document.
	Index(ctx context.Context, index, id string, document map[string]any) error

	// CreateIndex creates an index from a full schema definition.
	CreateIndex(ctx context.Context, index string, definition map[string]any) error

	// DeleteIndex removes an index.
	DeleteIndex(ctx context.Context, index string) error

	// UpdateAlias points an alias at the target index, removing it from any
	// index it previously pointed at.
	UpdateAlias(ctx context.Context, alias, target string) error

	// Refresh makes recent writes visible to search.
	Refresh(ctx context.Context, index string) error

	// Mapping returns the index's mapping metadata (properties plus _meta),
	// as stored by the engine.
	Mapping(ctx context.Context, index string) (map[string]any, error)

	// Stats returns the engine's raw stats document for the index
	// ("_all" for every index).
	Stats(ctx context.Context, index string) (map[string]any, error)

	// Info returns the engine's raw per-index metadata (settings, mapping
	// _meta, aliases), keyed by concrete index name.
	Info(ctx context.Context, index string) (map[string]any, error)

	// Ping checks that the engine is reachable.
	Ping(ctx context.Context) error
}

// SearchResponse is the engine-neutral shape of a raw search response.
type SearchResponse struct {
	Took         int
	Total        int
	Hits         []Hit
	Aggregations map[string]Aggregation
}

// Hit is a single raw search hit.
type Hit struct {
	ID        string
	Source    map[string]any
	Highlight map[string][]string
}

// Aggregation holds the buckets of a single terms aggregation.
type Aggregation struct {
	Buckets []Bucket
}

// Bucket is a single terms-aggregation bucket.
type Bucket struct {
	Key      any
	DocCount int
}

// Error is a semantic error reported by the engine, as opposed to a
// transport failure. The fields come from the engine's own error document;
// Error() renders the normalized summary exposed to callers.
type Error struct {
	StatusCode int
	Type       string
	Reason     string
	Index      string
}

func (e *Error) Error() string {
	typ := e.Type
	if typ == "" {
		typ = "<unknown type>"
	}
	reason := e.Reason
	if reason == "" {
		reason = "<unknown reason>"
	}
	index := e.Index
	if index == "" {
		index = "<no index>"
	}
	return fmt.Sprintf("%s: %s (%s)", typ, reason, index)
}

// resultWindowReason is the prefix Elasticsearch uses when a requested
// offset exceeds the index's max_result_window.
const resultWindowReason = "Result window is too large"

// IsResultWindowTooLarge reports whether the error is the engine refusing to
// serve a page beyond its configured result window.
func IsResultWindowTooLarge(err error) bool {
	var engErr *Error
	return errors.As(err, &engErr) && strings.HasPrefix(engErr.Reason, resultWindowReason)
}

// IsNotFound reports whether the engine error is a missing document or index.
func IsNotFound(err error) bool {
	var engErr *Error
	return errors.As(err, &engErr) && engErr.StatusCode == 404
}
